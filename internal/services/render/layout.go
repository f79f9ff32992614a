package render

import (
	"math"

	"BusScope/internal/services/cursor"
	"BusScope/internal/services/ticks"
)

// Plot margins around each surface, in logical pixels.
const (
	MarginLeft   = 56.0
	MarginRight  = 8.0
	MarginTop    = 8.0
	MarginBottom = 22.0

	// MinPanelHeight keeps separate-mode panels readable when many signals are enabled.
	MinPanelHeight = 80.0
)

// Surface is a laid out plot area. Key is the signal id of a panel or
// cursor.Combined for the shared surface.
type Surface struct {
	Key   string     `json:"key"`
	Outer ticks.Rect `json:"outer"`
	Plot  ticks.Rect `json:"plot"`
}

// Layout is the arrangement of surfaces for one frame.
type Layout struct {
	Width    float64
	Height   float64
	Surfaces []Surface
}

// At returns the surface whose plot area contains (x, y).
func (l Layout) At(x, y float64) (Surface, bool) {
	for _, s := range l.Surfaces {
		if s.Plot.Contains(x, y) {
			return s, true
		}
	}
	return Surface{}, false
}

// Arrange lays out the surfaces for mode. Separate mode stacks one panel per id;
// the layout grows past the viewport height when panels hit MinPanelHeight.
func Arrange(mode Mode, ids []string, vp Viewport) Layout {
	l := Layout{Width: vp.Width, Height: vp.Height}
	if !vp.Valid() {
		return l
	}
	if mode != ModeSeparate {
		outer := ticks.Rect{W: vp.Width, H: vp.Height}
		l.Surfaces = []Surface{{Key: cursor.Combined, Outer: outer, Plot: inset(outer)}}
		return l
	}
	if len(ids) == 0 {
		return l
	}
	h := math.Max(vp.Height/float64(len(ids)), MinPanelHeight)
	l.Height = math.Max(vp.Height, h*float64(len(ids)))
	l.Surfaces = make([]Surface, 0, len(ids))
	for i, id := range ids {
		outer := ticks.Rect{Y: float64(i) * h, W: vp.Width, H: h}
		l.Surfaces = append(l.Surfaces, Surface{Key: id, Outer: outer, Plot: inset(outer)})
	}
	return l
}

func inset(r ticks.Rect) ticks.Rect {
	return ticks.Rect{
		X: r.X + MarginLeft,
		Y: r.Y + MarginTop,
		W: math.Max(r.W-MarginLeft-MarginRight, 0),
		H: math.Max(r.H-MarginTop-MarginBottom, 0),
	}
}

// seriesIDs lists the ids of f's series in order.
func seriesIDs(f Frame) []string {
	ids := make([]string, len(f.Series))
	for i, s := range f.Series {
		ids[i] = s.ID
	}
	return ids
}
