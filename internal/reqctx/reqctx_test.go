package reqctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsRequestIDAndTime(t *testing.T) {
	before := time.Now().UTC()
	rc := New()
	after := time.Now().UTC()

	require.NotEmpty(t, rc.RequestID)
	assert.Len(t, rc.RequestID, 26, "ULID canonical string encoding is 26 chars")
	assert.False(t, rc.RequestTime.Before(before))
	assert.False(t, rc.RequestTime.After(after))
}

func TestNew_ProducesUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rc := New()
		assert.False(t, seen[rc.RequestID], "request id collision")
		seen[rc.RequestID] = true
	}
}

func TestWithFieldAndFields_Snapshot(t *testing.T) {
	rc := New()
	rc.WithField("chunk_count", 3)
	rc.WithField("model", "anthropic.claude-3-5-sonnet")

	snap := rc.Fields()
	assert.Equal(t, 3, snap["chunk_count"])
	assert.Equal(t, "anthropic.claude-3-5-sonnet", snap["model"])

	snap["chunk_count"] = 999
	assert.Equal(t, 3, rc.Fields()["chunk_count"], "snapshot mutation must not affect internal state")
}

func TestElapsed_NonNegative(t *testing.T) {
	rc := New()
	time.Sleep(time.Millisecond)
	assert.Greater(t, rc.Elapsed(), time.Duration(0))
}

func TestRandomSuffix_LengthAndAlphabet(t *testing.T) {
	s := RandomSuffix(8)
	assert.Len(t, s, 8)
	for _, r := range s {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z'))
	}
}

func TestSetLocation_StampsRequestTimeInGivenZone(t *testing.T) {
	defer SetLocation(time.UTC)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	SetLocation(loc)

	rc := New()
	assert.Equal(t, loc, rc.RequestTime.Location())
}

func TestSetLocation_NilLeavesLocationUnchanged(t *testing.T) {
	defer SetLocation(time.UTC)

	SetLocation(time.UTC)
	SetLocation(nil)

	rc := New()
	assert.Equal(t, time.UTC, rc.RequestTime.Location())
}
