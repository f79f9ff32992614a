package window

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceOnlyWhileRunning(t *testing.T) {
	t.Parallel()

	w := New(DefaultConfig(), 100)
	assert.Equal(t, State{Start: 90, End: 100, Duration: 10}, w.State())

	w.Advance(0.5)
	assert.InDelta(t, 100.5, w.State().End, 1e-9)

	w.Pause()
	w.Advance(5)
	assert.InDelta(t, 100.5, w.State().End, 1e-9)

	w.Advance(-1)
	w.Advance(math.NaN())
	assert.InDelta(t, 90.5, w.State().Start, 1e-9)
}

func TestResumeSnapsToNow(t *testing.T) {
	t.Parallel()

	w := New(DefaultConfig(), 100)
	w.Pause()
	w.ShiftWindow(-30, 100)
	w.Resume(140)

	assert.False(t, w.Paused())
	assert.Equal(t, State{Start: 130, End: 140, Duration: 10}, w.State())
}

func TestAdjustTimePerDivision(t *testing.T) {
	t.Parallel()

	t.Run("running re-anchors at now", func(t *testing.T) {
		t.Parallel()
		w := New(DefaultConfig(), 100)
		w.AdjustTimePerDivision(1.2, 100)
		w.AdjustTimePerDivision(1.2, 100)
		assert.InDelta(t, 14.4, w.State().Duration, 1e-9)
		assert.InDelta(t, 100, w.State().End, 1e-9)
		assert.InDelta(t, 1.44, w.TimePerDivision(), 1e-9)
	})

	t.Run("paused keeps start", func(t *testing.T) {
		t.Parallel()
		w := New(DefaultConfig(), 100)
		w.Pause()
		w.AdjustTimePerDivision(0.5, 120)
		assert.Equal(t, State{Start: 90, End: 95, Duration: 5}, w.State())
	})

	t.Run("clamped to bounds", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		cfg.MaxDuration = 12
		w := New(cfg, 100)
		w.AdjustTimePerDivision(1.2, 100)
		w.AdjustTimePerDivision(1.2, 100)
		assert.InDelta(t, 12, w.State().Duration, 1e-9)

		w.AdjustTimePerDivision(1e-9, 100)
		assert.InDelta(t, cfg.MinDuration, w.State().Duration, 1e-9)
	})

	t.Run("ignores invalid factors", func(t *testing.T) {
		t.Parallel()
		w := New(DefaultConfig(), 100)
		w.AdjustTimePerDivision(0, 100)
		w.AdjustTimePerDivision(-2, 100)
		w.AdjustTimePerDivision(math.Inf(1), 100)
		assert.InDelta(t, 10, w.State().Duration, 1e-9)
	})
}

func TestShiftWindow(t *testing.T) {
	t.Parallel()

	t.Run("no-op while running", func(t *testing.T) {
		t.Parallel()
		w := New(DefaultConfig(), 100)
		assert.False(t, w.ShiftWindow(-2, 100))
		assert.InDelta(t, 90, w.State().Start, 1e-9)
	})

	t.Run("translates while paused", func(t *testing.T) {
		t.Parallel()
		w := New(DefaultConfig(), 100)
		w.Pause()
		assert.True(t, w.ShiftWindow(-2, 100))
		assert.Equal(t, State{Start: 88, End: 98, Duration: 10}, w.State())
	})

	t.Run("never extends past now", func(t *testing.T) {
		t.Parallel()
		w := New(DefaultConfig(), 100)
		w.Pause()
		w.ShiftWindow(5, 100)
		assert.InDelta(t, 100, w.State().End, 1e-9)
	})

	t.Run("never before retained history", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig()
		cfg.History = 30
		w := New(cfg, 100)
		w.Pause()
		w.ShiftWindow(-1000, 100)
		assert.InDelta(t, 70, w.State().Start, 1e-9)
		assert.InDelta(t, 10, w.State().Duration, 1e-9)
	})
}
