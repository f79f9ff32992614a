// Package ticks computes axis ticks and labels and maps time/value pairs onto
// pixel rectangles.
package ticks

import "math"

// niceSteps are the normalized step candidates within one decade.
var niceSteps = []float64{1, 2, 2.5, 5, 10}

// Set is a tick layout: Min and Max are snapped to multiples of Step and
// Values lists every tick from Min to Max inclusive.
type Set struct {
	Min    float64
	Max    float64
	Step   float64
	Values []float64
}

// Compute returns ticks covering [min, max] with at most roughly maxTicks
// entries and never fewer than two.
func Compute(min, max float64, maxTicks int) Set {
	if !finite(min) || !finite(max) {
		min, max = 0, 1
	}
	if min > max {
		min, max = max, min
	}
	if min == max {
		pad := math.Max(math.Abs(min)*0.05, 0.5)
		min -= pad
		max += pad
	}
	if maxTicks < 2 {
		maxTicks = 2
	}

	step := NiceStep((max - min) / float64(maxTicks-1))
	lo := math.Floor(min/step) * step
	hi := math.Ceil(max/step) * step
	n := int(math.Round((hi - lo) / step))
	if n < 1 {
		n = 1
		hi = lo + step
	}

	values := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		values = append(values, clean(lo+float64(i)*step, step))
	}
	return Set{Min: values[0], Max: values[n], Step: step, Values: values}
}

// NiceStep rounds raw up to the next value of the form {1, 2, 2.5, 5, 10} x 10^k.
func NiceStep(raw float64) float64 {
	if !finite(raw) || raw <= 0 {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	norm := raw / mag
	for _, c := range niceSteps {
		// tolerate floating error so exact candidates are not bumped a level
		if c >= norm*(1-1e-9) {
			return c * mag
		}
	}
	return 10 * mag
}

// clean removes accumulated floating error, e.g. 0.30000000000000004 -> 0.3.
func clean(v, step float64) float64 {
	if v == 0 {
		return 0
	}
	decimals := int(math.Ceil(-math.Log10(step))) + 2
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
