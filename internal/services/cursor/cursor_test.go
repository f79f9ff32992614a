package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/services/window"
)

var win = window.State{Start: 0, End: 10, Duration: 10}

func TestEnableRequiresPause(t *testing.T) {
	t.Parallel()

	s := NewSet()
	assert.False(t, s.Enable(Combined, false, win))
	assert.False(t, s.Enabled(Combined))

	require.True(t, s.Enable(Combined, true, win))
	p := s.Get(Combined)
	require.NotNil(t, p.Positions[0])
	require.NotNil(t, p.Positions[1])
	assert.InDelta(t, 3, *p.Positions[0], 1e-9)
	assert.InDelta(t, 7, *p.Positions[1], 1e-9)
}

func TestEnableKeepsExistingPositions(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Enable("rpm", true, win)
	s.Move("rpm", 1, 9)
	s.Disable("rpm")
	s.Enable("rpm", true, window.State{Start: 50, End: 60, Duration: 10})

	p := s.Get("rpm")
	assert.InDelta(t, 3, *p.Positions[0], 1e-9)
	assert.InDelta(t, 9, *p.Positions[1], 1e-9)
}

func TestDisableAllOnResume(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Enable(Combined, true, win)
	s.Enable("rpm", true, win)
	s.DisableAll()
	assert.False(t, s.Enabled(Combined))
	assert.False(t, s.Enabled("rpm"))
	assert.False(t, s.Move("rpm", 0, 1), "disabled cursors cannot move")
}

func TestDeltaReadout(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Enable(Combined, true, win)
	s.Move(Combined, 0, 3)
	s.Move(Combined, 1, 7)
	assert.Equal(t, "4.0s", s.Readout(Combined).Delta)

	s.Move(Combined, 1, 3.0005)
	assert.Equal(t, "0.5ms", s.Readout(Combined).Delta)
}

func TestHitTest(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Enable(Combined, true, win)

	// 50 px per second: cursor at t=3 is 10px away from t=3.2
	idx, ok := s.HitTest(Combined, 3.2, 50)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = s.HitTest(Combined, 3.3, 50)
	assert.False(t, ok, "15px is outside the grab threshold")

	idx, ok = s.HitTest(Combined, 6.9, 50)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = s.HitTest("other", 3, 50)
	assert.False(t, ok)
}

func TestPruneDropsRemovedSignals(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Enable(Combined, true, win)
	s.Enable("a", true, win)
	s.Enable("b", true, win)

	s.Prune(func(id string) bool { return id == "a" })
	assert.True(t, s.Enabled(Combined))
	assert.True(t, s.Enabled("a"))
	assert.False(t, s.Enabled("b"))
	assert.Nil(t, s.Get("b").Positions[0])
}
