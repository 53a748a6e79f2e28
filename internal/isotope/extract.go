package isotope

import (
	"math"
	"sort"

	"github.com/midtools/mzmid/internal/mzml"
	"github.com/midtools/mzmid/internal/spectra"
)

// Trace is the extracted ion chromatogram of one isotopomer: intensity
// sampled at the retention times of the scans in the extraction window.
type Trace struct {
	RT        []float64
	Intensity []float64
}

// Extract pulls one trace per isotopomer offset from the given scans.
// All traces share the same retention-time sample points, so their
// integrals line up. Scans with no peak within the ppm tolerance of
// the target m/z contribute intensity 0 at that retention time.
func Extract(scans []spectra.Scan, mass float64, charge int, offsets []int, tolerancePPM float64) []Trace {
	traces := make([]Trace, len(offsets))
	for i := range traces {
		traces[i].RT = make([]float64, len(scans))
		traces[i].Intensity = make([]float64, len(scans))
	}
	for j, scan := range scans {
		for i, offset := range offsets {
			mz := TargetMz(mass, charge, offset)
			mzErr := tolerancePPM * mz / 1e6
			peak := matchPeakInMzWindow(mz, mz-mzErr, mz+mzErr, scan.Peaks)
			traces[i].RT[j] = scan.RT
			traces[i].Intensity[j] = peak.Intens
		}
	}
	return traces
}

// matchPeakInMzWindow returns the highest intensity peak in a given mz
// window; when intensities tie, the peak closest to the target mz wins.
// Peaks must be ordered by mz prior to calling this function.
// If no peak was found, peak.Intens will be 0.
func matchPeakInMzWindow(target, mzMin, mzMax float64, peaks []mzml.Peak) mzml.Peak {
	i1 := sort.Search(len(peaks), func(i int) bool { return peaks[i].Mz >= mzMin })
	i2 := sort.Search(len(peaks), func(i int) bool { return peaks[i].Mz > mzMax })

	var peak mzml.Peak // auto initialized to 0.0, 0.0
	found := false
	for i := i1; i < i2; i++ {
		better := peaks[i].Intens > peak.Intens
		if !better && found && peaks[i].Intens == peak.Intens {
			better = math.Abs(peaks[i].Mz-target) < math.Abs(peak.Mz-target)
		}
		if !found || better {
			peak = peaks[i]
			found = true
		}
	}
	return peak
}
