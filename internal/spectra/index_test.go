package spectra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/midtools/mzmid/internal/mzml/mzmltest"
)

func writeTestFile(t *testing.T, specs []mzmltest.Spectrum) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mzML")
	if err := os.WriteFile(path, mzmltest.Build(specs), 0644); err != nil {
		t.Fatalf("writing test mzML: %v", err)
	}
	return path
}

func testSpecs() []mzmltest.Spectrum {
	specs := make([]mzmltest.Spectrum, 0, 10)
	for i := 0; i < 10; i++ {
		specs = append(specs, mzmltest.Spectrum{
			ScanNumber:  i + 1,
			RT:          100.0 + float64(i)*2.0, // 100..118 s
			Mzs:         []float64{400.0, 500.0},
			Intensities: []float64{10, float64(i) * 100},
		})
	}
	// one MS2 scan in the middle, must never show up in window queries
	specs = append(specs, mzmltest.Spectrum{
		ScanNumber:  11,
		RT:          109.0,
		MSLevel:     2,
		Mzs:         []float64{123.0},
		Intensities: []float64{1},
	})
	return specs
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/no/such/file.mzML")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Open: error return %v, should wrap ErrSourceUnavailable", err)
	}
}

func TestScansInWindow(t *testing.T) {
	f, err := Open(writeTestFile(t, testSpecs()))
	if err != nil {
		t.Fatalf("Open: error return %v", err)
	}
	if f.NumMS1() != 10 {
		t.Errorf("NumMS1: %d, should be 10", f.NumMS1())
	}

	// window covers RT 106..110, i.e. scans at 106, 108, 110,
	// plus one edge scan on each side (104 and 112)
	scans := f.ScansInWindow(108.0, 2.0)
	if len(scans) != 5 {
		t.Fatalf("ScansInWindow: %d scans, should be 5", len(scans))
	}
	wantRT := []float64{104, 106, 108, 110, 112}
	for i, s := range scans {
		if s.RT != wantRT[i] {
			t.Errorf("ScansInWindow: scan %d at RT %f, should be %f", i, s.RT, wantRT[i])
		}
		if len(s.Peaks) != 2 {
			t.Errorf("ScansInWindow: scan %d has %d peaks, should be 2", i, len(s.Peaks))
		}
	}

	// empty window far away from any scan
	if scans := f.ScansInWindow(5000.0, 2.0); scans != nil {
		t.Errorf("ScansInWindow: %d scans, should be none", len(scans))
	}
}

func TestScanCacheReuse(t *testing.T) {
	f, err := Open(writeTestFile(t, testSpecs()))
	if err != nil {
		t.Fatalf("Open: error return %v", err)
	}
	a := f.ScansInWindow(108.0, 2.0)
	b := f.ScansInWindow(108.0, 2.0)
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("ScansInWindow: inconsistent results %d vs %d", len(a), len(b))
	}
	// cached decode hands out the same backing array
	if &a[0].Peaks[0] != &b[0].Peaks[0] {
		t.Errorf("ScansInWindow: scan not served from cache")
	}
}

func TestCorruptScansSkipped(t *testing.T) {
	specs := testSpecs()
	specs[3].TruncateIntensities = true            // mismatched array lengths
	specs[5].Mzs = []float64{500.0, 400.0}         // non-monotonic m/z
	specs[5].Intensities = []float64{10, 20}

	f, err := Open(writeTestFile(t, specs))
	if err != nil {
		t.Fatalf("Open: error return %v", err)
	}
	scans := f.ScansInWindow(109.0, 10.0) // covers all 10 MS1 scans
	if len(scans) != 8 {
		t.Errorf("ScansInWindow: %d scans, should be 8 (2 corrupt skipped)", len(scans))
	}
	// repeated query must not recount the corrupt scans
	f.ScansInWindow(109.0, 10.0)
	if f.CorruptScans() != 2 {
		t.Errorf("CorruptScans: %d, should be 2", f.CorruptScans())
	}
}

func TestRetentionTimeOfScan(t *testing.T) {
	f, err := Open(writeTestFile(t, testSpecs()))
	if err != nil {
		t.Fatalf("Open: error return %v", err)
	}
	rt, err := f.RetentionTimeOfScan(3)
	if err != nil {
		t.Fatalf("RetentionTimeOfScan: error return %v", err)
	}
	if rt != 104.0 {
		t.Errorf("RetentionTimeOfScan: %f, should be 104.0", rt)
	}
	if _, err := f.RetentionTimeOfScan(99); err == nil {
		t.Errorf("RetentionTimeOfScan: expected error for unknown scan number")
	}
}
