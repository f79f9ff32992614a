package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BusScope/internal/services/cursor"
	"BusScope/internal/services/scale"
	"BusScope/internal/services/ticks"
	"BusScope/internal/services/window"
)

const now = 1000.0

// fakeView wires the controller to real window, scale and cursor models
// over a single 500x200 surface.
type fakeView struct {
	win     *window.Window
	scales  map[string]*scale.State
	cursors *cursor.Set
	surface Surface
	pans    []float64
}

func newFakeView(hpan, vpan bool) *fakeView {
	return &fakeView{
		win:     window.New(window.DefaultConfig(), now),
		scales:  map[string]*scale.State{"": scale.NewState(), "rpm": scale.NewState()},
		cursors: cursor.NewSet(),
		surface: Surface{Scope: "", Plot: ticks.Rect{W: 500, H: 200}, HorizontalPan: hpan, VerticalPan: vpan},
	}
}

func (v *fakeView) SurfaceAt(x, y float64) (Surface, bool) {
	if !v.surface.Plot.Contains(x, y) {
		return Surface{}, false
	}
	return v.surface, true
}
func (v *fakeView) Paused() bool                    { return v.win.Paused() }
func (v *fakeView) Window() window.State            { return v.win.State() }
func (v *fakeView) ShiftWindow(delta float64)       { v.win.ShiftWindow(delta, now) }
func (v *fakeView) AdjustTimePerDivision(f float64) { v.win.AdjustTimePerDivision(f, now) }
func (v *fakeView) AdjustZoom(scope string, f float64) {
	v.scales[scope].AdjustZoom(f)
}
func (v *fakeView) Pan(scope string, dy, h float64) {
	v.pans = append(v.pans, dy)
	v.scales[scope].Pan(dy, h, 10)
}
func (v *fakeView) CursorHit(scope string, t, pxps float64) (int, bool) {
	return v.cursors.HitTest(scope, t, pxps)
}
func (v *fakeView) MoveCursor(scope string, i int, t float64) { v.cursors.Move(scope, i, t) }

func TestTimeDragShiftsPausedWindow(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	v.win.Pause()
	c := New(v)

	c.PointerDown(Pointer{X: 200, Y: 100})
	require.Equal(t, Undecided, c.Gesture())
	assert.True(t, c.Captured())

	c.PointerMove(Pointer{X: 250, Y: 101})
	require.Equal(t, TimeDrag, c.Gesture())
	c.PointerMove(Pointer{X: 300, Y: 102})
	c.PointerUp(Pointer{X: 300, Y: 102})

	assert.InDelta(t, 988, v.win.State().Start, 1e-9, "100px on 500px of a 10s window is 2s")
	assert.Equal(t, Idle, c.Gesture())
	assert.False(t, c.Captured())
	assert.Empty(t, v.pans)
}

func TestSmallMovesStayUndecided(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	v.win.Pause()
	c := New(v)

	c.PointerDown(Pointer{X: 100, Y: 100})
	c.PointerMove(Pointer{X: 102, Y: 101})
	assert.Equal(t, Undecided, c.Gesture())
	assert.InDelta(t, 990, v.win.State().Start, 1e-9)
}

func TestVerticalDragPans(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	c := New(v)

	c.PointerDown(Pointer{X: 100, Y: 50})
	c.PointerMove(Pointer{X: 101, Y: 60})
	require.Equal(t, ValueDrag, c.Gesture())
	c.PointerMove(Pointer{X: 140, Y: 70})
	assert.Equal(t, ValueDrag, c.Gesture(), "resolution is sticky")
	assert.Equal(t, []float64{10, 10}, v.pans)
}

func TestHorizontalDragWhileRunningFallsBackToValueDrag(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	c := New(v)

	c.PointerDown(Pointer{X: 100, Y: 50})
	c.PointerMove(Pointer{X: 150, Y: 52})
	assert.Equal(t, ValueDrag, c.Gesture())
	assert.InDelta(t, 990, v.win.State().Start, 1e-9)
}

func TestTimeDragAbortsWhenResumed(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, false)
	v.win.Pause()
	c := New(v)

	c.PointerDown(Pointer{X: 100, Y: 50})
	c.PointerMove(Pointer{X: 150, Y: 50})
	require.Equal(t, TimeDrag, c.Gesture())

	v.win.Resume(now)
	c.PointerMove(Pointer{X: 200, Y: 50})
	assert.Equal(t, Idle, c.Gesture())
	assert.InDelta(t, 990, v.win.State().Start, 1e-9)
}

func TestCursorDragMovesCursor(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	v.win.Pause()
	v.cursors.Enable("", true, v.win.State())
	c := New(v)

	// cursor A sits at 30% of the window, x=150
	c.PointerDown(Pointer{X: 155, Y: 100})
	require.Equal(t, CursorDrag, c.Gesture())
	c.PointerMove(Pointer{X: 400, Y: 100})

	p := v.cursors.Get("")
	assert.InDelta(t, 998, *p.Positions[0], 1e-9)
	assert.InDelta(t, 997, *p.Positions[1], 1e-9)
	assert.InDelta(t, 990, v.win.State().Start, 1e-9, "cursor drags never shift the window")
}

func TestCancelAndLeaveDiscardDrag(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	v.win.Pause()
	c := New(v)

	c.PointerDown(Pointer{X: 100, Y: 50})
	c.PointerCancel()
	c.PointerMove(Pointer{X: 300, Y: 50})
	assert.InDelta(t, 990, v.win.State().Start, 1e-9)

	c.PointerDown(Pointer{X: 100, Y: 50})
	c.PointerLeave()
	assert.Equal(t, Idle, c.Gesture())
	assert.False(t, c.Captured())
}

func TestPointerDownOutsideSurfaceIsIgnored(t *testing.T) {
	t.Parallel()

	c := New(newFakeView(true, true))
	c.PointerDown(Pointer{X: 900, Y: 900})
	assert.Equal(t, Idle, c.Gesture())
	assert.False(t, c.Captured())
}

func TestWheel(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, true)
	c := New(v)

	c.Wheel(Wheel{X: 10, Y: 10, DeltaY: 120})
	assert.InDelta(t, 1.1, v.scales[""].Zoom, 1e-9, "scrolling down zooms out")

	c.Wheel(Wheel{X: 10, Y: 10, DeltaY: -120, DeltaX: 3})
	assert.InDelta(t, 1.0, v.scales[""].Zoom, 1e-9)

	c.Wheel(Wheel{X: 10, Y: 10, DeltaX: 50, DeltaY: 5})
	assert.InDelta(t, 11, v.win.State().Duration, 1e-9)

	c.Wheel(Wheel{})
	assert.InDelta(t, 11, v.win.State().Duration, 1e-9)
}

func TestEditModeGatesRemoval(t *testing.T) {
	t.Parallel()

	var removed []string
	c := New(newFakeView(true, true), WithRemoveCallback(func(id string) { removed = append(removed, id) }))

	assert.False(t, c.ActivateRemove("rpm"))
	c.SetEditMode(true)
	assert.True(t, c.EditMode())
	assert.True(t, c.ActivateRemove("rpm"))
	assert.Equal(t, []string{"rpm"}, removed)
}

func TestUnresolvableDragStaysInert(t *testing.T) {
	t.Parallel()

	v := newFakeView(true, false)
	c := New(v)

	c.PointerDown(Pointer{X: 100, Y: 50})
	c.PointerMove(Pointer{X: 150, Y: 50})
	assert.Equal(t, Undecided, c.Gesture(), "running window without vertical pan resolves to nothing")

	v.win.Pause()
	c.PointerMove(Pointer{X: 200, Y: 50})
	assert.Equal(t, Undecided, c.Gesture(), "the gesture does not resolve later")
	assert.InDelta(t, 990, v.win.State().Start, 1e-9)
}
