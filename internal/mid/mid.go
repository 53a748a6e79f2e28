// Package mid assembles mass isotopomer distributions: it drives trace
// extraction and integration for every accepted identification and
// collects the per-peptide area vectors.
package mid

import (
	"errors"
	"fmt"
)

// Record is the mass isotopomer distribution of one identification.
// Areas and Fractions are aligned with the configured isotopomer
// offsets; missing channels hold 0, never fewer elements.
type Record struct {
	Sequence      string
	Charge        int
	SpectrumFile  string
	RetentionTime float64 // seconds, center of the extraction window

	Areas     []float64
	Fractions []float64 // Areas normalized to sum 1; all 0 when invalid

	// Valid is true only if the monoisotopic channel yielded signal.
	// Invalid records are still reported so that downstream accounting
	// sees every input identification, but must be excluded from
	// aggregate calculations.
	Valid bool
}

// Stats summarizes a quantitation run.
type Stats struct {
	Processed    int // identifications quantified (all emitted records)
	SourceErrors int // records zeroed because their spectral source failed
	NoSignal     int // records with no detectable monoisotopic signal
	CorruptScans int // scans skipped across all source files
}

// Params configure a quantitation run.
type Params struct {
	Offsets      []int   // isotopomer offsets, e.g. 0,1,2,3,4,5,6
	TolerancePPM float64 // mass tolerance for peak matching
	RTHalfWidth  float64 // seconds, extraction window half-width
	Workers      int     // concurrent spectral files, >= 1

	// TraceObserver, when set, receives the extracted traces of each
	// record before integration. Used for debug output; may be called
	// from multiple goroutines.
	TraceObserver TraceObserver
}

var ErrConfig = errors.New("mid: invalid configuration")

// Validate rejects configurations before any processing begins.
// Offsets must be non-empty, non-negative and strictly increasing.
func (p *Params) Validate() error {
	if len(p.Offsets) == 0 {
		return fmt.Errorf("%w: empty isotopomer offset list", ErrConfig)
	}
	prev := -1
	for _, o := range p.Offsets {
		if o < 0 {
			return fmt.Errorf("%w: negative isotopomer offset %d", ErrConfig, o)
		}
		if o <= prev {
			return fmt.Errorf("%w: isotopomer offsets must be strictly increasing", ErrConfig)
		}
		prev = o
	}
	if p.TolerancePPM <= 0 {
		return fmt.Errorf("%w: mass tolerance must be > 0 ppm", ErrConfig)
	}
	if p.RTHalfWidth <= 0 {
		return fmt.Errorf("%w: retention time window must be > 0", ErrConfig)
	}
	if p.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1", ErrConfig)
	}
	return nil
}
