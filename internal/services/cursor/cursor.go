// Package cursor implements the dual time-marker measurement tool.
package cursor

import (
	"fmt"
	"math"

	"BusScope/internal/services/window"
)

// GrabThresholdPx is how close a pointer must be to a cursor to grab it.
const GrabThresholdPx = 12

// Combined is the scope key of the shared combined-mode surface.
const Combined = ""

// Pair is the measurement state of one scope.
type Pair struct {
	Positions [2]*float64
	Enabled   bool
}

// Delta is the absolute distance between the cursors, when both are placed.
func (p *Pair) Delta() (float64, bool) {
	a, b := p.Positions[0], p.Positions[1]
	if a == nil || b == nil {
		return 0, false
	}
	return math.Abs(*b - *a), true
}

// Readout is the formatted measurement of a scope.
type Readout struct {
	Scope   string   `json:"scope"`
	Enabled bool     `json:"enabled"`
	A       *float64 `json:"a,omitempty"`
	B       *float64 `json:"b,omitempty"`
	Delta   string   `json:"delta,omitempty"`
}

// Set holds the combined pair and one pair per signal, created lazily.
type Set struct {
	pairs map[string]*Pair
}

func NewSet() *Set {
	return &Set{pairs: make(map[string]*Pair)}
}

func (s *Set) pair(scope string) *Pair {
	p, ok := s.pairs[scope]
	if !ok {
		p = &Pair{}
		s.pairs[scope] = p
	}
	return p
}

// Get returns a copy of the pair of scope.
func (s *Set) Get(scope string) Pair {
	if p, ok := s.pairs[scope]; ok {
		return *p
	}
	return Pair{}
}

// Enable turns the cursors of scope on. It is a no-op unless paused; unset
// positions are seeded at 30% and 70% of the window.
func (s *Set) Enable(scope string, paused bool, win window.State) bool {
	if !paused {
		return false
	}
	p := s.pair(scope)
	if p.Positions[0] == nil {
		p.Positions[0] = ptr(win.Start + 0.3*win.Duration)
	}
	if p.Positions[1] == nil {
		p.Positions[1] = ptr(win.Start + 0.7*win.Duration)
	}
	p.Enabled = true
	return true
}

// Disable turns the cursors of scope off, keeping their positions.
func (s *Set) Disable(scope string) {
	if p, ok := s.pairs[scope]; ok {
		p.Enabled = false
	}
}

// DisableAll turns every scope off. It runs on resume.
func (s *Set) DisableAll() {
	for _, p := range s.pairs {
		p.Enabled = false
	}
}

func (s *Set) Enabled(scope string) bool {
	p, ok := s.pairs[scope]
	return ok && p.Enabled
}

// Move places cursor index of scope at t.
func (s *Set) Move(scope string, index int, t float64) bool {
	if index < 0 || index > 1 || math.IsNaN(t) || math.IsInf(t, 0) {
		return false
	}
	p, ok := s.pairs[scope]
	if !ok || !p.Enabled {
		return false
	}
	p.Positions[index] = ptr(t)
	return true
}

// HitTest returns the cursor of scope nearest to t when it lies within
// GrabThresholdPx, given the horizontal scale in pixels per second.
func (s *Set) HitTest(scope string, t, pxPerSecond float64) (int, bool) {
	p, ok := s.pairs[scope]
	if !ok || !p.Enabled || !(pxPerSecond > 0) {
		return -1, false
	}
	best, bestDist := -1, math.Inf(1)
	for i, pos := range p.Positions {
		if pos == nil {
			continue
		}
		d := math.Abs(*pos-t) * pxPerSecond
		if d <= GrabThresholdPx && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

// Prune drops per-signal pairs whose signal is no longer registered.
func (s *Set) Prune(live func(id string) bool) {
	for scope := range s.pairs {
		if scope != Combined && !live(scope) {
			delete(s.pairs, scope)
		}
	}
}

// Readout formats the state of scope.
func (s *Set) Readout(scope string) Readout {
	p := s.Get(scope)
	r := Readout{Scope: scope, Enabled: p.Enabled, A: p.Positions[0], B: p.Positions[1]}
	if d, ok := p.Delta(); ok {
		r.Delta = FormatDelta(d)
	}
	return r
}

// FormatDelta renders a duration in seconds, switching to milliseconds below one second.
func FormatDelta(seconds float64) string {
	if seconds >= 1 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.1fms", seconds*1000)
}

func ptr(f float64) *float64 { return &f }
