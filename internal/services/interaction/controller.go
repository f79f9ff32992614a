// Package interaction turns pointer and wheel input into window, scale and
// cursor mutations.
package interaction

import (
	"math"

	"BusScope/internal/services/ticks"
	"BusScope/internal/services/window"
)

const (
	// DragThresholdPx is how far the pointer must travel before a drag resolves.
	DragThresholdPx = 3.0
	// HorizontalBias is how much |dx| must exceed |dy| for a drag to count as horizontal.
	HorizontalBias = 1.2
	// WheelFactor is the zoom step applied per wheel event.
	WheelFactor = 1.1
)

// Surface describes an interactive plot area.
type Surface struct {
	// Scope is the signal id of a panel, or empty for the combined surface.
	Scope         string
	Plot          ticks.Rect
	HorizontalPan bool
	VerticalPan   bool
}

// View is the state the controller reads and mutates.
type View interface {
	SurfaceAt(x, y float64) (Surface, bool)
	Paused() bool
	Window() window.State
	ShiftWindow(delta float64)
	AdjustTimePerDivision(factor float64)
	AdjustZoom(scope string, factor float64)
	Pan(scope string, deltaPixels, panelHeight float64)
	CursorHit(scope string, t, pxPerSecond float64) (int, bool)
	MoveCursor(scope string, index int, t float64)
}

// Pointer is a pointer position in viewport pixels.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Wheel is a scroll event at a pointer position.
type Wheel struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaX float64 `json:"dx"`
	DeltaY float64 `json:"dy"`
}

// Controller is the gesture state machine. It is not safe for concurrent use.
type Controller struct {
	view     View
	active   gesture
	captured bool
	editMode bool
	onRemove func(id string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithRemoveCallback sets the callback invoked by ActivateRemove in edit mode.
func WithRemoveCallback(fn func(id string)) Option {
	return func(c *Controller) { c.onRemove = fn }
}

// New creates a Controller over view.
func New(view View, opts ...Option) *Controller {
	c := &Controller{view: view}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Gesture returns the kind of the active gesture.
func (c *Controller) Gesture() Kind {
	if c.active == nil {
		return Idle
	}
	return c.active.kind()
}

// Captured reports whether the controller holds pointer capture.
func (c *Controller) Captured() bool { return c.captured }

// PointerDown starts a gesture on the surface under the pointer. Over a cursor
// handle it starts a cursor drag immediately.
func (c *Controller) PointerDown(p Pointer) {
	s, ok := c.view.SurfaceAt(p.X, p.Y)
	if !ok {
		return
	}
	a := anchor{surface: s, startX: p.X, startY: p.Y}
	c.captured = true

	if c.view.Paused() && s.Plot.W > 0 {
		win := c.view.Window()
		if win.Duration > 0 {
			t := ticks.TimeAt(p.X, s.Plot, win)
			if idx, hit := c.view.CursorHit(s.Scope, t, s.Plot.W/win.Duration); hit {
				c.active = &cursorDrag{anchor: a, index: idx}
				return
			}
		}
	}
	c.active = &undecidedDrag{anchor: a}
}

// PointerMove advances the active gesture.
func (c *Controller) PointerMove(p Pointer) {
	switch g := c.active.(type) {
	case nil:
		return
	case *undecidedDrag:
		c.resolve(g, p)
	case *timeDrag:
		c.moveTime(g, p)
	case *valueDrag:
		c.moveValue(g, p)
	case *cursorDrag:
		c.moveCursor(g, p)
	}
}

// PointerUp ends the gesture.
func (c *Controller) PointerUp(Pointer) { c.release() }

// PointerCancel discards the gesture without further effects.
func (c *Controller) PointerCancel() { c.release() }

// PointerLeave discards the gesture without further effects.
func (c *Controller) PointerLeave() { c.release() }

// Wheel zooms vertically when the vertical delta dominates and changes the
// time per division when the horizontal delta does.
func (c *Controller) Wheel(w Wheel) {
	ax, ay := math.Abs(w.DeltaX), math.Abs(w.DeltaY)
	switch {
	case ay >= ax && w.DeltaY != 0:
		scope := ""
		if s, ok := c.view.SurfaceAt(w.X, w.Y); ok {
			scope = s.Scope
		}
		factor := WheelFactor
		if w.DeltaY < 0 {
			factor = 1 / WheelFactor
		}
		c.view.AdjustZoom(scope, factor)
	case ax > ay:
		factor := WheelFactor
		if w.DeltaX < 0 {
			factor = 1 / WheelFactor
		}
		c.view.AdjustTimePerDivision(factor)
	}
}

// SetEditMode toggles edit mode.
func (c *Controller) SetEditMode(on bool) { c.editMode = on }

func (c *Controller) EditMode() bool { return c.editMode }

// ActivateRemove asks for removal of id. It only has an effect in edit mode.
func (c *Controller) ActivateRemove(id string) bool {
	if !c.editMode || c.onRemove == nil {
		return false
	}
	c.onRemove(id)
	return true
}

func (c *Controller) release() {
	c.active = nil
	c.captured = false
}

func (c *Controller) resolve(g *undecidedDrag, p Pointer) {
	if g.inert {
		return
	}
	dx, dy := p.X-g.startX, p.Y-g.startY
	if math.Abs(dx) <= DragThresholdPx && math.Abs(dy) <= DragThresholdPx {
		return
	}
	s := g.surface
	paused := c.view.Paused()
	horizontal := math.Abs(dx) >= HorizontalBias*math.Abs(dy)

	switch {
	case horizontal && paused && s.HorizontalPan:
		td := &timeDrag{anchor: g.anchor}
		c.active = td
		c.moveTime(td, p)
	case s.VerticalPan:
		vd := &valueDrag{anchor: g.anchor, lastY: g.startY}
		c.active = vd
		c.moveValue(vd, p)
	case s.HorizontalPan && paused:
		td := &timeDrag{anchor: g.anchor}
		c.active = td
		c.moveTime(td, p)
	default:
		g.inert = true
	}
}

func (c *Controller) moveTime(g *timeDrag, p Pointer) {
	if !c.view.Paused() {
		c.release()
		return
	}
	if g.surface.Plot.W <= 0 {
		return
	}
	secondsPerPixel := c.view.Window().Duration / g.surface.Plot.W
	desired := -(p.X - g.startX) * secondsPerPixel
	if delta := desired - g.applied; delta != 0 {
		c.view.ShiftWindow(delta)
		g.applied = desired
	}
}

func (c *Controller) moveValue(g *valueDrag, p Pointer) {
	dy := p.Y - g.lastY
	if dy == 0 {
		return
	}
	c.view.Pan(g.surface.Scope, dy, g.surface.Plot.H)
	g.lastY = p.Y
}

func (c *Controller) moveCursor(g *cursorDrag, p Pointer) {
	t := ticks.TimeAt(p.X, g.surface.Plot, c.view.Window())
	c.view.MoveCursor(g.surface.Scope, g.index, t)
}
