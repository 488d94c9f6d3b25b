package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_NoSourceDisablesAuth(t *testing.T) {
	store, armed, err := Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, armed)
	assert.True(t, store.Verify("anything"))
	assert.True(t, store.Verify(""))
}

func TestInitialize_EmptyInlineDisablesAuth(t *testing.T) {
	store, armed, err := Initialize(context.Background(), InlineSource(""))
	require.NoError(t, err)
	assert.False(t, armed)
	assert.True(t, store.Verify("Bearer whatever"))
}

func TestVerify_CorrectAndIncorrectToken(t *testing.T) {
	store, armed, err := Initialize(context.Background(), InlineSource("sk-secret-token"))
	require.NoError(t, err)
	require.True(t, armed)

	assert.True(t, store.Verify("Bearer sk-secret-token"))
	assert.False(t, store.Verify("Bearer wrong-token"))
	assert.False(t, store.Verify("sk-secret-token")) // missing "Bearer " prefix
	assert.False(t, store.Verify(""))
}

func TestVerify_DifferentStoresSameKeyHaveDifferentDigests(t *testing.T) {
	a, _, err := Initialize(context.Background(), InlineSource("same-key"))
	require.NoError(t, err)
	b, _, err := Initialize(context.Background(), InlineSource("same-key"))
	require.NoError(t, err)

	assert.NotEqual(t, a.digest, b.digest, "independent salts should produce independent digests")
	assert.True(t, a.Verify("Bearer same-key"))
	assert.True(t, b.Verify("Bearer same-key"))
}

func TestExtractJSONField(t *testing.T) {
	val, err := extractJSONField(`{"api_key":"sk-abc","other":"x"}`, "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", val)

	_, err = extractJSONField(`{"other":"x"}`, "api_key")
	assert.Error(t, err)

	_, err = extractJSONField(`not json`, "api_key")
	assert.Error(t, err)
}
