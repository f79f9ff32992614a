package ticks

import (
	"math"
	"strconv"
)

// Format renders a tick value with precision chosen by magnitude.
func Format(v float64) string {
	if !finite(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	a := math.Abs(v)
	switch {
	case a >= 1000:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case a >= 100:
		return strconv.FormatFloat(v, 'f', 1, 64)
	case a >= 1:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case a >= 0.1:
		return strconv.FormatFloat(v, 'f', 3, 64)
	case a == 0:
		return "0"
	default:
		// three significant digits, never in exponent form
		return strconv.FormatFloat(v, 'f', 2-int(math.Floor(math.Log10(a))), 64)
	}
}

// FormatSeconds renders a time tick relative to an origin, e.g. "12.50s".
func FormatSeconds(t, origin float64) string {
	return Format(t-origin) + "s"
}
