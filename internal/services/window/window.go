// Package window tracks the visible time range of a plot and its pause state.
package window

import "math"

// State is the visible time range. End always equals Start + Duration.
type State struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// Contains reports whether t lies inside the range.
func (s State) Contains(t float64) bool { return t >= s.Start && t <= s.End }

// Config bounds the window. All values are seconds.
type Config struct {
	Duration    float64 `yaml:"duration" default:"10" validate:"gt=0"`
	MinDuration float64 `yaml:"min_duration" default:"0.1" validate:"gt=0"`
	MaxDuration float64 `yaml:"max_duration" default:"300" validate:"gtfield=MinDuration"`
	// History is how far behind now a paused window may be shifted.
	History   float64 `yaml:"history" default:"600" validate:"gt=0"`
	Divisions int     `yaml:"divisions" default:"10" validate:"gte=1"`
}

// DefaultConfig returns the stock window bounds.
func DefaultConfig() Config {
	return Config{Duration: 10, MinDuration: 0.1, MaxDuration: 300, History: 600, Divisions: 10}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if !positive(c.MinDuration) {
		c.MinDuration = d.MinDuration
	}
	if !positive(c.MaxDuration) || c.MaxDuration < c.MinDuration {
		c.MaxDuration = math.Max(d.MaxDuration, c.MinDuration)
	}
	if !positive(c.Duration) {
		c.Duration = d.Duration
	}
	c.Duration = clamp(c.Duration, c.MinDuration, c.MaxDuration)
	if !positive(c.History) {
		c.History = d.History
	}
	if c.Divisions < 1 {
		c.Divisions = d.Divisions
	}
	return c
}

// Window is the mutable time-window model. It is not safe for concurrent use.
type Window struct {
	cfg    Config
	state  State
	paused bool
}

// New creates a running window that ends at now.
func New(cfg Config, now float64) *Window {
	cfg = cfg.normalize()
	w := &Window{cfg: cfg}
	w.anchor(now, cfg.Duration)
	return w
}

func (w *Window) Config() Config { return w.cfg }

func (w *Window) State() State { return w.state }

func (w *Window) Paused() bool { return w.paused }

// TimePerDivision is the duration covered by one grid division.
func (w *Window) TimePerDivision() float64 {
	return w.state.Duration / float64(w.cfg.Divisions)
}

// HistoryStart is the earliest time a paused window may show.
func (w *Window) HistoryStart(now float64) float64 {
	return now - w.cfg.History
}

// Advance slides the window forward by dt while running.
func (w *Window) Advance(dt float64) {
	if w.paused || !positive(dt) {
		return
	}
	w.state.Start += dt
	w.state.End += dt
}

// Pause freezes the window.
func (w *Window) Pause() { w.paused = true }

// Resume unfreezes the window and snaps it to end at now.
func (w *Window) Resume(now float64) {
	w.paused = false
	if finite(now) {
		w.anchor(now, w.state.Duration)
	}
}

// AdjustTimePerDivision scales the duration by factor within the configured bounds.
// A running window stays anchored at now; a paused one keeps its start.
func (w *Window) AdjustTimePerDivision(factor, now float64) {
	if !positive(factor) {
		return
	}
	d := clamp(w.state.Duration*factor, w.cfg.MinDuration, w.cfg.MaxDuration)
	if w.paused {
		w.state.Duration = d
		w.state.End = w.state.Start + d
		return
	}
	if finite(now) {
		w.anchor(now, d)
	}
}

// ShiftWindow translates a paused window by delta seconds. The result is clamped
// so it never extends past now nor before the retained history; when both cannot
// hold, the window ends at now. It reports whether the window moved.
func (w *Window) ShiftWindow(delta, now float64) bool {
	if !w.paused || !finite(delta) || delta == 0 || !finite(now) {
		return false
	}
	d := w.state.Duration
	start := w.state.Start + delta
	if lo := w.HistoryStart(now); start < lo {
		start = lo
	}
	if start+d > now {
		start = now - d
	}
	if start == w.state.Start {
		return false
	}
	w.state.Start = start
	w.state.End = start + d
	return true
}

func (w *Window) anchor(now, d float64) {
	w.state = State{Start: now - d, End: now, Duration: d}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func positive(f float64) bool { return finite(f) && f > 0 }
