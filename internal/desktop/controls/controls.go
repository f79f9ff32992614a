// Package controls maps desktop keyboard shortcuts and polled mouse state onto
// session view operations. It has no windowing dependency.
package controls

import (
	"BusScope/internal/services/cursor"
	"BusScope/internal/services/interaction"
	"BusScope/internal/services/render"
	"BusScope/internal/usecase"
)

// Task mutates the view of a session. Tasks run on the session loop.
type Task func(v *usecase.ViewState)

// Action is a keyboard shortcut.
type Action int

const (
	TogglePause Action = iota
	ToggleCursors
	ToggleMode
	ToggleEdit
	AutoScale
	ResetScale
)

// Apply runs a on v. Every action addresses the combined surface.
func Apply(a Action, v *usecase.ViewState) {
	switch a {
	case TogglePause:
		if v.Paused() {
			v.Resume()
		} else {
			v.Pause()
		}
	case ToggleCursors:
		if v.CursorsEnabled(cursor.Combined) {
			v.DisableCursors(cursor.Combined)
			return
		}
		// refused while running
		_, _ = v.EnableCursors(cursor.Combined)
	case ToggleMode:
		if v.Mode() == render.ModeSeparate {
			v.SetMode(render.ModeCombined)
		} else {
			v.SetMode(render.ModeSeparate)
		}
	case ToggleEdit:
		v.SetEditMode(!v.EditMode())
	case AutoScale:
		_ = v.AutoScale(cursor.Combined)
	case ResetScale:
		_ = v.ResetScale(cursor.Combined)
	}
}

// Task returns a as a Task.
func (a Action) Task() Task { return func(v *usecase.ViewState) { Apply(a, v) } }

// PointerState is the mouse as polled once per tick, in window pixels.
type PointerState struct {
	X, Y    float64
	Pressed bool
	Inside  bool
	// WheelX and WheelY are scroll offsets with positive y meaning up.
	WheelX, WheelY float64
}

// Tracker turns successive polls into controller events.
type Tracker struct {
	down   bool
	inside bool
	x, y   float64
}

// Step compares p with the previous poll and returns the events it implies, in
// the order they must be applied.
func (t *Tracker) Step(p PointerState) []Task {
	var out []Task
	pt := interaction.Pointer{X: p.X, Y: p.Y}
	moved := p.X != t.x || p.Y != t.y

	switch {
	case p.Pressed && !t.down:
		if p.Inside {
			out = append(out, func(v *usecase.ViewState) { v.Controller().PointerDown(pt) })
			t.down = true
		}
	case p.Pressed && t.down:
		if moved {
			out = append(out, func(v *usecase.ViewState) { v.Controller().PointerMove(pt) })
		}
	case !p.Pressed && t.down:
		out = append(out, func(v *usecase.ViewState) { v.Controller().PointerUp(pt) })
		t.down = false
	}

	if t.inside && !p.Inside && !t.down {
		out = append(out, func(v *usecase.ViewState) { v.Controller().PointerLeave() })
	}

	if p.Inside && (p.WheelX != 0 || p.WheelY != 0) {
		// the controller takes browser deltas, where scrolling down is positive
		w := interaction.Wheel{X: p.X, Y: p.Y, DeltaX: -p.WheelX, DeltaY: -p.WheelY}
		out = append(out, func(v *usecase.ViewState) { v.Controller().Wheel(w) })
	}

	t.inside = p.Inside
	t.x, t.y = p.X, p.Y
	return out
}

// Down reports whether a drag is in progress.
func (t *Tracker) Down() bool { return t.down }
