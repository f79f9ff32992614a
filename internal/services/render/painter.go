package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/font/liberation"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/cursor"
	"BusScope/internal/services/ticks"
)

// maxValueTicks bounds the number of horizontal grid lines per surface.
const maxValueTicks = 6

var (
	background = color.RGBA{R: 0x12, G: 0x16, B: 0x1c, A: 0xff}
	gridColor  = color.RGBA{R: 0x2e, G: 0x36, B: 0x40, A: 0xff}
	axisColor  = color.RGBA{R: 0x5a, G: 0x66, B: 0x73, A: 0xff}
	labelColor = color.RGBA{R: 0xa8, G: 0xb3, B: 0xbf, A: 0xff}
	cursorA    = color.RGBA{R: 0xff, G: 0xc1, B: 0x07, A: 0xff}
	cursorB    = color.RGBA{R: 0x00, G: 0xe5, B: 0xff, A: 0xff}

	// palette colors series without a configured color.
	palette = []color.RGBA{
		{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff},
		{R: 0x21, G: 0x96, B: 0xf3, A: 0xff},
		{R: 0xff, G: 0x98, B: 0x00, A: 0xff},
		{R: 0xe9, G: 0x1e, B: 0x63, A: 0xff},
		{R: 0x9c, G: 0x27, B: 0xb0, A: 0xff},
		{R: 0x00, G: 0xbc, B: 0xd4, A: 0xff},
		{R: 0xcd, G: 0xdc, B: 0x39, A: 0xff},
		{R: 0x79, G: 0x55, B: 0x48, A: 0xff},
	}
)

func init() {
	font.DefaultCache.Add(liberation.Collection())
}

// ImagePainter rasterizes frames with gonum's vgimg canvas. Drawing units are
// logical pixels; the canvas DPI carries the pixel ratio.
type ImagePainter struct {
	canvas *vgimg.Canvas
	height float64
	face   font.Face
}

// NewImagePainter creates a painter for vp.
func NewImagePainter(vp Viewport) (*ImagePainter, error) {
	if !vp.Valid() {
		return nil, ErrNoTarget
	}
	p := &ImagePainter{
		face: font.DefaultCache.Lookup(font.Font{Typeface: "Liberation", Variant: "Sans"}, vg.Points(9)),
	}
	if err := p.Resize(vp.Width, vp.Height, vp.ratio()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ImagePainter) Resize(width, height, pixelRatio float64) error {
	if !(width > 0) || !(height > 0) {
		return ErrNoTarget
	}
	if !(pixelRatio > 0) {
		pixelRatio = 1
	}
	dpi := int(math.Round(vg.Inch.Points() * pixelRatio))
	if dpi < 1 {
		dpi = 1
	}
	p.canvas = vgimg.NewWith(
		vgimg.UseWH(vg.Length(width), vg.Length(height)),
		vgimg.UseDPI(dpi),
	)
	p.height = height
	return nil
}

func (p *ImagePainter) Image() image.Image {
	if p.canvas == nil {
		return nil
	}
	return p.canvas.Image()
}

func (p *ImagePainter) WritePNG(w io.Writer) error {
	if p.canvas == nil {
		return ErrNoTarget
	}
	if _, err := (vgimg.PngCanvas{Canvas: p.canvas}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func (p *ImagePainter) Paint(f Frame, l Layout) error {
	if p.canvas == nil {
		return ErrNoTarget
	}
	p.fillRect(ticks.Rect{W: l.Width, H: l.Height}, background)

	for _, sf := range l.Surfaces {
		if sf.Plot.W <= 0 || sf.Plot.H <= 0 {
			continue
		}
		if sf.Key == cursor.Combined {
			p.paintSurface(f, sf, f.CombinedRange, f.Series, 0, f.CombinedCursors)
			continue
		}
		for i := range f.Series {
			if f.Series[i].ID == sf.Key {
				s := f.Series[i : i+1]
				p.paintSurface(f, sf, s[0].Range, s, i, s[0].Cursors)
				break
			}
		}
	}
	return nil
}

// paintSurface draws series onto one surface. first is the index of series[0]
// in the frame, used to pick palette colors consistently across modes.
func (p *ImagePainter) paintSurface(f Frame, sf Surface, yRange models.Range, series []Series, first int, cursors cursor.Pair) {
	plot := sf.Plot
	win := f.Window

	// value grid and labels
	set := ticks.Compute(yRange.Min, yRange.Max, maxValueTicks)
	for _, v := range set.Values {
		y, ok := ticks.ProjectValue(v, plot, yRange)
		if !ok || y < plot.Y-0.5 || y > plot.Y+plot.H+0.5 {
			continue
		}
		p.line(plot.X, y, plot.X+plot.W, y, gridColor, 1)
		label := ticks.Format(v)
		p.text(plot.X-4-p.textWidth(label), y+3, label, labelColor)
	}

	// time grid and labels
	div := f.Divisions
	if div < 1 {
		div = 10
	}
	for i := 0; i <= div; i++ {
		x := plot.X + plot.W*float64(i)/float64(div)
		p.line(x, plot.Y, x, plot.Y+plot.H, gridColor, 1)
		if i%2 == 0 {
			t := win.Start + win.Duration*float64(i)/float64(div)
			label := ticks.FormatSeconds(t, f.Now)
			w := p.textWidth(label)
			p.text(math.Min(math.Max(x-w/2, plot.X), plot.X+plot.W-w), plot.Y+plot.H+14, label, labelColor)
		}
	}
	p.strokeRect(plot, axisColor)

	// series
	hold := f.Now
	if f.Paused {
		hold = win.End
	}
	for i, s := range series {
		path := ticks.Clip(ticks.StepPath(s.Samples, plot, win, yRange, hold), plot)
		p.polyline(path, seriesColor(s.Color, first+i), 1.5)
	}
	if len(series) == 1 {
		s := series[0]
		label := s.Label
		if s.Unit != "" {
			label += " [" + s.Unit + "]"
		}
		p.text(plot.X+4, plot.Y+12, label, seriesColor(s.Color, first))
	}

	// cursors
	if !cursors.Enabled {
		return
	}
	for i, pos := range cursors.Positions {
		if pos == nil {
			continue
		}
		x, ok := ticks.ProjectTime(*pos, plot, win)
		if !ok || x < plot.X || x > plot.X+plot.W {
			continue
		}
		c := cursorA
		name := "A"
		if i == 1 {
			c, name = cursorB, "B"
		}
		p.line(x, plot.Y, x, plot.Y+plot.H, c, 1)
		p.text(x+3, plot.Y+plot.H-4, name, c)
	}
	if d, ok := cursors.Delta(); ok {
		label := "Δ " + cursor.FormatDelta(d)
		p.text(plot.X+plot.W-p.textWidth(label)-4, plot.Y+12, label, labelColor)
	}
}

// pt converts a top-left based logical pixel into a canvas point.
func (p *ImagePainter) pt(x, y float64) vg.Point {
	return vg.Point{X: vg.Length(x), Y: vg.Length(p.height - y)}
}

func (p *ImagePainter) line(x0, y0, x1, y1 float64, c color.Color, width float64) {
	var path vg.Path
	path.Move(p.pt(x0, y0))
	path.Line(p.pt(x1, y1))
	p.canvas.SetColor(c)
	p.canvas.SetLineWidth(vg.Length(width))
	p.canvas.Stroke(path)
}

func (p *ImagePainter) polyline(pts []ticks.Point, c color.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	var path vg.Path
	path.Move(p.pt(pts[0].X, pts[0].Y))
	for _, q := range pts[1:] {
		path.Line(p.pt(q.X, q.Y))
	}
	p.canvas.SetColor(c)
	p.canvas.SetLineWidth(vg.Length(width))
	p.canvas.Stroke(path)
}

func rectPath(p *ImagePainter, r ticks.Rect) vg.Path {
	var path vg.Path
	path.Move(p.pt(r.X, r.Y))
	path.Line(p.pt(r.X+r.W, r.Y))
	path.Line(p.pt(r.X+r.W, r.Y+r.H))
	path.Line(p.pt(r.X, r.Y+r.H))
	path.Close()
	return path
}

func (p *ImagePainter) fillRect(r ticks.Rect, c color.Color) {
	p.canvas.SetColor(c)
	p.canvas.Fill(rectPath(p, r))
}

func (p *ImagePainter) strokeRect(r ticks.Rect, c color.Color) {
	p.canvas.SetColor(c)
	p.canvas.SetLineWidth(1)
	p.canvas.Stroke(rectPath(p, r))
}

func (p *ImagePainter) text(x, y float64, s string, c color.Color) {
	p.canvas.SetColor(c)
	p.canvas.FillString(p.face, p.pt(x, y), s)
}

func (p *ImagePainter) textWidth(s string) float64 {
	return float64(p.face.Width(s))
}

// seriesColor parses "#rrggbb", falling back to the palette entry for index i.
func seriesColor(hex string, i int) color.Color {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) == 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
		}
	}
	return palette[i%len(palette)]
}
