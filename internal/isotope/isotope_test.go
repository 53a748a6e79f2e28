package isotope

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/midtools/mzmid/internal/mzml"
	"github.com/midtools/mzmid/internal/spectra"
)

func TestPepMass(t *testing.T) {
	// G + G + H2O
	m, err := PepMass("GG")
	if err != nil {
		t.Fatalf("PepMass: error return %v", err)
	}
	want := 2*57.0214637 + 18.0105647
	if math.Abs(m-want) > 1e-9 {
		t.Errorf("PepMass: %f, should be %f", m, want)
	}

	_, err = PepMass("GXG")
	if !errors.Is(err, ErrInvalidAminoAcid) {
		t.Errorf("PepMass: error return %v, should be ErrInvalidAminoAcid", err)
	}
	_, err = PepMass("")
	if err != nil {
		t.Errorf("PepMass: error return %v for empty sequence", err)
	}
}

func TestTargetMz(t *testing.T) {
	mass := 1000.0
	m0 := TargetMz(mass, 2, 0)
	want := (1000.0 + 2*1.007276466879) / 2
	if math.Abs(m0-want) > 1e-9 {
		t.Errorf("TargetMz: %f, should be %f", m0, want)
	}
	// isotopomer spacing shrinks with charge
	m1 := TargetMz(mass, 2, 1)
	if math.Abs((m1-m0)-1.00335483/2) > 1e-9 {
		t.Errorf("TargetMz: offset spacing %f, should be %f", m1-m0, 1.00335483/2)
	}
}

func scanAt(rt float64, peaks ...mzml.Peak) spectra.Scan {
	return spectra.Scan{RT: rt, Peaks: peaks}
}

func TestExtractAlignedTraces(t *testing.T) {
	mass := 1000.0
	charge := 2
	m0 := TargetMz(mass, charge, 0)
	m1 := TargetMz(mass, charge, 1)

	scans := []spectra.Scan{
		scanAt(100.0, mzml.Peak{Mz: m0, Intens: 500}),
		scanAt(101.0, mzml.Peak{Mz: m0, Intens: 900}, mzml.Peak{Mz: m1, Intens: 300}),
		scanAt(102.0),
	}
	traces := Extract(scans, mass, charge, []int{0, 1}, 10.0)
	if len(traces) != 2 {
		t.Fatalf("Extract: %d traces, should be 2", len(traces))
	}
	wantRT := []float64{100, 101, 102}
	opts := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(wantRT, traces[0].RT, opts); diff != "" {
		t.Errorf("Extract: trace 0 RT mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantRT, traces[1].RT, opts); diff != "" {
		t.Errorf("Extract: trace 1 RT mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{500, 900, 0}, traces[0].Intensity, opts); diff != "" {
		t.Errorf("Extract: trace 0 intensity mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 300, 0}, traces[1].Intensity, opts); diff != "" {
		t.Errorf("Extract: trace 1 intensity mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPeakSelection(t *testing.T) {
	mass := 1000.0
	m0 := TargetMz(mass, 1, 0)

	// two peaks in tolerance: the more intense one wins even though
	// it is further from the target
	scans := []spectra.Scan{scanAt(10.0,
		mzml.Peak{Mz: m0 - 0.001, Intens: 100},
		mzml.Peak{Mz: m0 + 0.004, Intens: 800},
	)}
	traces := Extract(scans, mass, 1, []int{0}, 10.0)
	if traces[0].Intensity[0] != 800 {
		t.Errorf("Extract: matched intensity %f, should be 800 (max intensity)", traces[0].Intensity[0])
	}

	// equal intensities: closest m/z wins
	scans = []spectra.Scan{scanAt(10.0,
		mzml.Peak{Mz: m0 - 0.004, Intens: 100},
		mzml.Peak{Mz: m0 + 0.001, Intens: 100},
	)}
	traces = Extract(scans, mass, 1, []int{0}, 10.0)
	// both candidates have the same intensity, verify via the matcher directly
	tol := 10.0 * m0 / 1e6
	peak := matchPeakInMzWindow(m0, m0-tol, m0+tol, scans[0].Peaks)
	if peak.Mz != m0+0.001 {
		t.Errorf("matchPeakInMzWindow: matched mz %f, should be %f (closest)", peak.Mz, m0+0.001)
	}
	_ = traces
}

func TestExtractToleranceMonotonic(t *testing.T) {
	mass := 1000.0
	m0 := TargetMz(mass, 1, 0)
	scans := []spectra.Scan{scanAt(10.0,
		mzml.Peak{Mz: m0 + 0.002, Intens: 50},
		mzml.Peak{Mz: m0 + 0.006, Intens: 700},
	)}
	prev := -1.0
	for _, ppm := range []float64{0.5, 1, 2, 5, 10, 20, 50} {
		traces := Extract(scans, mass, 1, []int{0}, ppm)
		got := traces[0].Intensity[0]
		if got < prev {
			t.Errorf("Extract: intensity %f at %f ppm dropped below %f", got, ppm, prev)
		}
		prev = got
	}
}
