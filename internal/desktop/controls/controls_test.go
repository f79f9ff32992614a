package controls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/services/cursor"
	"BusScope/internal/services/render"
	"BusScope/internal/usecase"
	"BusScope/pkg/clock"
)

func newView(t *testing.T) *usecase.ViewState {
	t.Helper()
	cfg := usecase.DefaultEngineConfig()
	cfg.Viewport = render.Viewport{Width: 640, Height: 360, PixelRatio: 1}
	return usecase.NewViewState(cfg, clock.NewMock(time.Unix(1000, 0)))
}

func run(v *usecase.ViewState, tasks []Task) {
	for _, task := range tasks {
		task(v)
	}
}

func TestShortcuts(t *testing.T) {
	t.Parallel()

	v := newView(t)

	ToggleCursors.Task()(v)
	assert.False(t, v.CursorsEnabled(cursor.Combined), "cursors stay off while running")

	TogglePause.Task()(v)
	require.True(t, v.Paused())
	ToggleCursors.Task()(v)
	assert.True(t, v.CursorsEnabled(cursor.Combined))
	ToggleCursors.Task()(v)
	assert.False(t, v.CursorsEnabled(cursor.Combined))

	ToggleMode.Task()(v)
	assert.Equal(t, render.ModeSeparate, v.Mode())
	ToggleMode.Task()(v)
	assert.Equal(t, render.ModeCombined, v.Mode())

	ToggleEdit.Task()(v)
	assert.True(t, v.EditMode())
	ToggleEdit.Task()(v)
	assert.False(t, v.EditMode())

	v.AdjustZoom(cursor.Combined, 4)
	ResetScale.Task()(v)
	sc, err := v.Scale(cursor.Combined)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sc.Zoom)

	TogglePause.Task()(v)
	assert.False(t, v.Paused())
}

func TestTrackerDrag(t *testing.T) {
	t.Parallel()

	var tr Tracker
	assert.Empty(t, tr.Step(PointerState{X: 10, Y: 10, Inside: true}), "hovering emits nothing")

	assert.Len(t, tr.Step(PointerState{X: 10, Y: 10, Inside: true, Pressed: true}), 1)
	assert.True(t, tr.Down())
	assert.Empty(t, tr.Step(PointerState{X: 10, Y: 10, Inside: true, Pressed: true}), "no motion, no move")
	assert.Len(t, tr.Step(PointerState{X: 30, Y: 12, Inside: true, Pressed: true}), 1)

	// dragging out of the window keeps the gesture
	assert.Len(t, tr.Step(PointerState{X: -5, Y: 12, Pressed: true}), 1)
	assert.True(t, tr.Down())

	assert.Len(t, tr.Step(PointerState{X: -5, Y: 12}), 2, "release then leave")
	assert.False(t, tr.Down())
}

func TestTrackerIgnoresPressOutside(t *testing.T) {
	t.Parallel()

	var tr Tracker
	assert.Empty(t, tr.Step(PointerState{X: -1, Y: -1, Pressed: true}))
	assert.False(t, tr.Down())
}

func TestTrackerWheel(t *testing.T) {
	t.Parallel()

	v := newView(t)
	var tr Tracker

	// scrolling down zooms out
	run(v, tr.Step(PointerState{X: 320, Y: 180, Inside: true, WheelY: -1}))
	sc, err := v.Scale(cursor.Combined)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, sc.Zoom, 1e-9)

	run(v, tr.Step(PointerState{X: 320, Y: 180, Inside: true, WheelY: 1}))
	sc, err = v.Scale(cursor.Combined)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sc.Zoom, 1e-9)

	before := v.TimePerDivision()
	run(v, tr.Step(PointerState{X: 320, Y: 180, Inside: true, WheelX: -3}))
	assert.Greater(t, v.TimePerDivision(), before, "a horizontal scroll widens the window")

	assert.Len(t, tr.Step(PointerState{X: 900, Y: 180, WheelY: 1}), 1, "only the leave, the wheel is outside")
}
