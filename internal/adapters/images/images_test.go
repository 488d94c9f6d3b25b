package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityTier(t *testing.T) {
	assert.Equal(t, "standard", qualityTier("low"))
	assert.Equal(t, "standard", qualityTier("medium"))
	assert.Equal(t, "premium", qualityTier("high"))
	assert.Equal(t, "standard", qualityTier(""))
}

func TestMatches_PrefixLookup(t *testing.T) {
	a := New(nil, nil, "", "amazon.titan-image")
	assert.True(t, a.Matches("amazon.titan-image-generator-v2"))
	assert.False(t, a.Matches("anthropic.claude-3"))
}

func TestRandomSuffix_Unique(t *testing.T) {
	a := randomSuffix()
	b := randomSuffix()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 16)
}
