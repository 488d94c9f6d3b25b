package transcription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeconds(t *testing.T) {
	v, err := parseSeconds("12.345")
	require.NoError(t, err)
	assert.InDelta(t, 12.345, v, 0.0001)
}

func TestParseSeconds_Empty(t *testing.T) {
	v, err := parseSeconds("")
	require.NoError(t, err)
	assert.Equal(t, float64(0), v)
}

func TestMatches_PrefixLookup(t *testing.T) {
	a := New(nil, nil, "bucket", "/v1", "amazon.transcribe")
	assert.True(t, a.Matches("amazon.transcribe-standard"))
	assert.False(t, a.Matches("amazon.polly"))
}
