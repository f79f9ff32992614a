// Package scale holds vertical zoom and offset state and derives the value
// ranges plots are drawn against.
package scale

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"BusScope/internal/domain/models"
)

const (
	MinZoom float64 = 0.05
	MaxZoom float64 = 50
)

// State is the vertical view of one plot surface.
type State struct {
	Zoom   float64       `json:"zoom"`
	Offset float64       `json:"offset"`
	Fit    *models.Range `json:"fit,omitempty"`
}

// NewState returns an unzoomed, unpanned state.
func NewState() *State {
	return &State{Zoom: 1}
}

// AdjustZoom multiplies the zoom by factor, clamped to [MinZoom, MaxZoom]. The
// displayed span is the base span times the zoom, so factors above 1 zoom out.
func (s *State) AdjustZoom(factor float64) {
	if !finite(factor) || factor <= 0 {
		return
	}
	s.Zoom = math.Min(math.Max(s.Zoom*factor, MinZoom), MaxZoom)
}

// Pan moves the view by deltaPixels of a panel panelHeight pixels tall that
// currently shows span value units. Dragging downward moves the trace downward.
func (s *State) Pan(deltaPixels, panelHeight, span float64) {
	if !finite(deltaPixels) || !finite(panelHeight) || panelHeight <= 0 || !finite(span) || span <= 0 {
		return
	}
	s.Offset += deltaPixels / panelHeight * span
}

func (s *State) ResetZoom() { s.Zoom = 1 }

func (s *State) ResetOffset() { s.Offset = 0 }

// Reset restores zoom and offset and forgets any fitted range.
func (s *State) Reset() {
	s.Zoom = 1
	s.Offset = 0
	s.Fit = nil
}

// AutoScale fits the base range to the visible values and clears zoom and offset.
// With no visible values the fitted range is dropped.
func (s *State) AutoScale(visible []float64) {
	s.Zoom = 1
	s.Offset = 0
	if r, ok := DataRange(visible); ok {
		r = padEqual(r)
		s.Fit = &r
		return
	}
	s.Fit = nil
}

// Apply derives the displayed range from base using zoom and offset.
func (s *State) Apply(base models.Range) models.Range {
	zoom := s.Zoom
	if !finite(zoom) || zoom <= 0 {
		zoom = 1
	}
	half := base.Span() / 2 * zoom
	mid := base.Mid() + s.Offset
	return models.Range{Min: mid - half, Max: mid + half}
}

// Input is one signal's contribution to a combined range.
type Input struct {
	Values []float64
	Static *models.Range
}

// DefaultRange is used when nothing else is known.
var DefaultRange = models.Range{Min: 0, Max: 1}

// CombinedRange is the union of the visible values of every input, using an
// input's static range when it has no values. Degenerate results are padded by 1
// and an empty union yields DefaultRange.
func CombinedRange(inputs []Input) models.Range {
	var (
		out  models.Range
		seen bool
	)
	merge := func(r models.Range) {
		if !seen {
			out, seen = r, true
			return
		}
		out.Min = math.Min(out.Min, r.Min)
		out.Max = math.Max(out.Max, r.Max)
	}
	for _, in := range inputs {
		if r, ok := DataRange(in.Values); ok {
			merge(r)
			continue
		}
		if in.Static != nil && in.Static.Valid() {
			merge(*in.Static)
		}
	}
	if !seen {
		return DefaultRange
	}
	return padEqual(out)
}

// BaseRange picks the unzoomed range of a single signal: a fitted range first,
// then its visible values, then its static range, then DefaultRange.
func BaseRange(fit, static *models.Range, values []float64) models.Range {
	if fit != nil && fit.Valid() {
		return *fit
	}
	return CombinedRange([]Input{{Values: values, Static: static}})
}

// DataRange returns the min and max of the finite values.
func DataRange(values []float64) (models.Range, bool) {
	clean := values
	for _, v := range values {
		if !finite(v) {
			clean = make([]float64, 0, len(values))
			for _, w := range values {
				if finite(w) {
					clean = append(clean, w)
				}
			}
			break
		}
	}
	if len(clean) == 0 {
		return models.Range{}, false
	}
	return models.Range{Min: floats.Min(clean), Max: floats.Max(clean)}, true
}

func padEqual(r models.Range) models.Range {
	if r.Min == r.Max {
		return models.Range{Min: r.Min - 1, Max: r.Max + 1}
	}
	return r
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
