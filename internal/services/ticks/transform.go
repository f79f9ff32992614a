package ticks

import (
	"BusScope/internal/domain/models"
	"BusScope/internal/services/window"
)

// Rect is a pixel rectangle with its origin at the top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Point is a pixel position; Y grows downward.
type Point struct {
	X float64
	Y float64
}

// Project maps (t, v) into rect: time runs left to right across the window and
// values run bottom to top across yRange. ok is false for degenerate input.
func Project(t, v float64, rect Rect, win window.State, yRange models.Range) (Point, bool) {
	dur := win.End - win.Start
	span := yRange.Max - yRange.Min
	if !(dur > 0) || !(span > 0) || !finite(t) || !finite(v) || !finite(dur) || !finite(span) {
		return Point{}, false
	}
	x := rect.X + (t-win.Start)/dur*rect.W
	y := rect.Y + rect.H - (v-yRange.Min)/span*rect.H
	return Point{X: x, Y: y}, true
}

// TimeAt inverts the horizontal projection.
func TimeAt(x float64, rect Rect, win window.State) float64 {
	if rect.W <= 0 {
		return win.Start
	}
	return win.Start + (x-rect.X)/rect.W*(win.End-win.Start)
}

// StepPath builds a step-interpolated polyline: each value is held flat until
// the next sample's timestamp, then jumps vertically. The last value is held
// until holdUntil when that lies after it. Samples must be ordered by time.
func StepPath(samples []models.Sample, rect Rect, win window.State, yRange models.Range, holdUntil float64) []Point {
	if len(samples) == 0 {
		return nil
	}
	path := make([]Point, 0, len(samples)*2+1)
	var prev Point
	have := false
	for _, s := range samples {
		p, ok := Project(s.T, s.V, rect, win, yRange)
		if !ok {
			continue
		}
		if have {
			path = append(path, Point{X: p.X, Y: prev.Y})
		}
		path = append(path, p)
		prev, have = p, true
	}
	if !have {
		return nil
	}
	last := samples[len(samples)-1]
	if finite(holdUntil) && holdUntil > last.T {
		if end, ok := Project(holdUntil, last.V, rect, win, yRange); ok {
			path = append(path, Point{X: end.X, Y: prev.Y})
		}
	}
	return path
}

// Clip limits a path to the horizontal extent of rect so held values from
// before the window do not draw into the margins.
func Clip(path []Point, rect Rect) []Point {
	if len(path) == 0 {
		return path
	}
	lo, hi := rect.X, rect.X+rect.W
	out := make([]Point, 0, len(path))
	for i, p := range path {
		if p.X >= lo && p.X <= hi {
			out = append(out, p)
			continue
		}
		// step paths only have horizontal segments crossing the edges
		if i+1 < len(path) && p.X < lo && path[i+1].X > lo && path[i+1].Y == p.Y {
			out = append(out, Point{X: lo, Y: p.Y})
		}
		if i > 0 && p.X > hi && path[i-1].X < hi && path[i-1].Y == p.Y {
			out = append(out, Point{X: hi, Y: p.Y})
		}
	}
	return out
}

// ProjectValue maps a value onto the vertical axis of rect.
func ProjectValue(v float64, rect Rect, yRange models.Range) (float64, bool) {
	span := yRange.Max - yRange.Min
	if !(span > 0) || !finite(v) {
		return 0, false
	}
	return rect.Y + rect.H - (v-yRange.Min)/span*rect.H, true
}

// ProjectTime maps a timestamp onto the horizontal axis of rect.
func ProjectTime(t float64, rect Rect, win window.State) (float64, bool) {
	dur := win.End - win.Start
	if !(dur > 0) || !finite(t) {
		return 0, false
	}
	return rect.X + (t-win.Start)/dur*rect.W, true
}
