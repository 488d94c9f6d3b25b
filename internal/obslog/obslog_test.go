package obslog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLocation_UpdatesPackageLocation(t *testing.T) {
	defer SetLocation(time.UTC)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	SetLocation(loc)

	assert.Equal(t, loc, location)
}

func TestSetLocation_NilLeavesLocationUnchanged(t *testing.T) {
	defer SetLocation(time.UTC)

	SetLocation(time.UTC)
	SetLocation(nil)

	assert.Equal(t, time.UTC, location)
}

func TestCommonFields_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		commonFields(EventRequest, LevelInfo)
	})
}
