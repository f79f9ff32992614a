// Package render draws session state into raster frames on a fixed cadence.
// Painting only reads the frame it is handed; the scheduler mutates nothing but
// its own surface cache.
package render

import (
	"errors"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/cursor"
	"BusScope/internal/services/window"
)

// ErrNoTarget is returned when a scheduler is built without somewhere to draw.
var ErrNoTarget = errors.New("render: no valid rendering target")

// Mode selects how signals share the viewport.
type Mode string

const (
	ModeCombined Mode = "combined"
	ModeSeparate Mode = "separate"
)

// ParseMode returns the mode named s, defaulting to combined.
func ParseMode(s string) Mode {
	if Mode(s) == ModeSeparate {
		return ModeSeparate
	}
	return ModeCombined
}

// Viewport is the logical drawing size and the device pixel ratio.
type Viewport struct {
	Width      float64 `json:"width" yaml:"width" default:"960" validate:"gt=0"`
	Height     float64 `json:"height" yaml:"height" default:"540" validate:"gt=0"`
	PixelRatio float64 `json:"pixel_ratio" yaml:"pixel_ratio" default:"1" validate:"gt=0"`
}

// Valid reports whether the viewport has a drawable area.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0 && !(v.PixelRatio < 0)
}

func (v Viewport) ratio() float64 {
	if v.PixelRatio > 0 {
		return v.PixelRatio
	}
	return 1
}

// Series is one signal as it should be drawn.
type Series struct {
	ID    string
	Label string
	Unit  string
	Color string
	// Samples are sorted by time and cover the window plus one leading sample.
	Samples []models.Sample
	// Range is the displayed value range of the signal's own panel.
	Range   models.Range
	Cursors cursor.Pair
}

// Frame is everything one paint cycle needs. Sources build a fresh Frame per
// cycle so painters never observe later mutations.
type Frame struct {
	Window window.State
	Now    float64
	Paused bool
	Mode   Mode
	// CombinedRange is the displayed range of the combined surface.
	CombinedRange   models.Range
	CombinedCursors cursor.Pair
	Series          []Series
	Divisions       int
	Viewport        Viewport
}

// Source produces frames. It is called on the goroutine that owns the state.
type Source interface {
	Frame() Frame
}

// Executor runs tasks on the goroutine that owns the frame source.
type Executor interface {
	Post(task func()) bool
}
