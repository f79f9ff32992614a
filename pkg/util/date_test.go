package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	t.Parallel()

	got, ok := ParseTime("2024-10-10T10:10:10Z")
	require.True(t, ok)
	assert.Equal(t, "2024-10-10T10:10:10Z", got.UTC().Format(time.RFC3339))

	got, ok = ParseTime("1728555010.25")
	require.True(t, ok)
	assert.Equal(t, int64(1728555010), got.Unix())
	assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseTime("-5")
	assert.False(t, ok)
}

func TestParseSeconds(t *testing.T) {
	t.Parallel()

	s, ok := ParseSeconds("1000.5")
	require.True(t, ok)
	assert.InDelta(t, 1000.5, s, 1e-6)

	s, ok = ParseSeconds("1970-01-01T00:00:02Z")
	require.True(t, ok)
	assert.Equal(t, 2.0, s)
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 3, ParseIntDefault("3", 7))
	assert.Equal(t, 1.5, ParseFloatDefault("NaN", 1.5))
	assert.Equal(t, 2.25, ParseFloatDefault("2.25", 1.5))
}
