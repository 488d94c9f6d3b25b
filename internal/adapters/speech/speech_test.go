package speech

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVoice_DirectMatch(t *testing.T) {
	a := New(nil, nil)
	v, err := a.ResolveVoice(context.Background(), "Alloy", "hello world")
	require.NoError(t, err)
	assert.Equal(t, types.VoiceIdJoanna, v)
}

func TestResolveVoice_FallsBackWithoutComprehend(t *testing.T) {
	a := New(nil, nil)
	v, err := a.ResolveVoice(context.Background(), "unknown-voice", "hello")
	require.NoError(t, err)
	assert.Equal(t, types.VoiceIdJoanna, v)
}

func TestCharacterUsage(t *testing.T) {
	assert.Equal(t, 5, CharacterUsage("hello"))
	assert.Equal(t, 0, CharacterUsage(""))
}

func TestMatches(t *testing.T) {
	a := New(nil, nil, "amazon.polly")
	assert.True(t, a.Matches("amazon.polly"))
	assert.False(t, a.Matches("anthropic.claude-3"))
}
