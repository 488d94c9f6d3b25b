package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeAdapter struct{ prefix string }

func (f fakeAdapter) Matches(modelID string) bool {
	return len(modelID) >= len(f.prefix) && modelID[:len(f.prefix)] == f.prefix
}

func TestRegistry_ResolveFirstMatchWins(t *testing.T) {
	r := NewRegistry[fakeAdapter]()
	r.Register(fakeAdapter{prefix: "amazon.titan"})
	r.Register(fakeAdapter{prefix: "amazon."})

	a, ok := r.Resolve("amazon.titan-embed-v2")
	assert.True(t, ok)
	assert.Equal(t, "amazon.titan", a.prefix)
}

func TestRegistry_ResolveCaches(t *testing.T) {
	r := NewRegistry[fakeAdapter]()
	r.Register(fakeAdapter{prefix: "cohere."})

	_, ok := r.Resolve("cohere.embed-v3")
	assert.True(t, ok)
	cached, ok := r.cache["cohere.embed-v3"]
	assert.True(t, ok)
	assert.Equal(t, "cohere.", cached.prefix)
}

func TestRegistry_NoMatch(t *testing.T) {
	r := NewRegistry[fakeAdapter]()
	r.Register(fakeAdapter{prefix: "amazon."})
	_, ok := r.Resolve("anthropic.claude-3")
	assert.False(t, ok)
}
