// Package xic integrates extracted ion chromatograms into peak areas.
package xic

import (
	"gonum.org/v1/gonum/integrate"

	"github.com/midtools/mzmid/internal/isotope"
)

// Integrate computes the area under a trace by trapezoidal integration
// over the raw extracted intensities. No smoothing or baseline
// subtraction is applied. Traces with fewer than two samples yield 0.
// Negative intensities indicate an upstream decoding defect and are
// clamped to 0.
func Integrate(trace isotope.Trace) float64 {
	if len(trace.RT) < 2 {
		return 0
	}
	clamped := false
	for _, y := range trace.Intensity {
		if y < 0 {
			clamped = true
			break
		}
	}
	intens := trace.Intensity
	if clamped {
		intens = make([]float64, len(trace.Intensity))
		for i, y := range trace.Intensity {
			if y > 0 {
				intens[i] = y
			}
		}
	}
	area := integrate.Trapezoidal(trace.RT, intens)
	if area < 0 {
		return 0
	}
	return area
}
