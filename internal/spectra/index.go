// Package spectra indexes the MS1 scans of a spectral file for
// retention-time window queries. Decoded scans are cached per file
// handle, so peptides quantified from the same file don't re-decode
// the same spectra.
package spectra

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/midtools/mzmid/internal/mzml"
)

var (
	// ErrSourceUnavailable means the spectral file is missing or unreadable
	ErrSourceUnavailable = errors.New("spectra: source unavailable")
	// ErrCorruptScan means a scan's peak arrays are malformed; such
	// scans are skipped, not fatal to the run
	ErrCorruptScan = errors.New("spectra: corrupt scan")
)

// Scans whose retention time falls just outside the requested window
// are included, so that peak shapes are sampled up to the window edges.
const edgeScans = 1

// Soft cap on the number of cached decoded scans per file.
const maxCachedScans = 4096

// Scan is one decoded MS1 spectrum. Read-only once produced.
type Scan struct {
	Index int     // scan index within the file
	RT    float64 // seconds
	Peaks []mzml.Peak
}

type rtSpec struct {
	rt   float64
	spec int
}

// File is an open spectral file with its MS1 retention-time index.
// Safe for concurrent readers; decoding is serialized per scan.
type File struct {
	path string
	mz   mzml.MzML
	ms1  []rtSpec // MS1 scans, ascending retention time

	mu       sync.RWMutex
	cache    map[int][]mzml.Peak
	corrupt  map[int]bool
	nCorrupt int
}

// Open reads the scan inventory of an mzML file. Peak data is decoded
// lazily by ScansInWindow. A missing or undecodable file is reported
// as ErrSourceUnavailable.
func Open(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer r.Close()
	mz, err := mzml.Read(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}

	f := &File{
		path:    path,
		mz:      mz,
		cache:   make(map[int][]mzml.Peak),
		corrupt: make(map[int]bool),
	}
	numSpecs := mz.NumSpecs()
	f.ms1 = make([]rtSpec, 0, numSpecs)
	for i := 0; i < numSpecs; i++ {
		msLevel, err := f.mz.MSLevel(i)
		if err != nil || msLevel != 1 {
			continue
		}
		rt, err := f.mz.RetentionTime(i)
		if err != nil || rt < 0 {
			continue
		}
		f.ms1 = append(f.ms1, rtSpec{rt: rt, spec: i})
	}
	sort.Slice(f.ms1, func(i, j int) bool { return f.ms1[i].rt < f.ms1[j].rt })
	return f, nil
}

// Path returns the file name the handle was opened with.
func (f *File) Path() string { return f.path }

// NumMS1 returns the number of MS1 scans in the file.
func (f *File) NumMS1() int { return len(f.ms1) }

// CorruptScans returns how many scans were skipped because their peak
// data was malformed.
func (f *File) CorruptScans() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nCorrupt
}

// RetentionTimeOfScan resolves an instrument scan number to the
// retention time of that scan, in seconds.
func (f *File) RetentionTimeOfScan(scanNumber int) (float64, error) {
	idx, err := f.mz.ScanNumberIndex(scanNumber)
	if err != nil {
		return 0, err
	}
	return f.mz.RetentionTime(idx)
}

// ScansInWindow returns the decoded MS1 scans with retention time in
// [center-halfWidth, center+halfWidth], ascending, plus one scan
// beyond each window edge. Corrupt scans are counted and skipped.
func (f *File) ScansInWindow(center, halfWidth float64) []Scan {
	rtMin := center - halfWidth
	rtMax := center + halfWidth

	i1 := sort.Search(len(f.ms1), func(i int) bool { return f.ms1[i].rt >= rtMin })
	i2 := sort.Search(len(f.ms1), func(i int) bool { return f.ms1[i].rt > rtMax })
	if i1 >= i2 {
		return nil
	}
	i1 -= edgeScans
	if i1 < 0 {
		i1 = 0
	}
	i2 += edgeScans
	if i2 > len(f.ms1) {
		i2 = len(f.ms1)
	}

	scans := make([]Scan, 0, i2-i1)
	for i := i1; i < i2; i++ {
		peaks, err := f.readScan(f.ms1[i].spec)
		if err != nil {
			continue
		}
		scans = append(scans, Scan{
			Index: f.ms1[i].spec,
			RT:    f.ms1[i].rt,
			Peaks: peaks,
		})
	}
	return scans
}

// readScan decodes a scan, or returns the cached copy.
// Decoded peaks must be monotonically non-decreasing in m/z; anything
// else marks the scan corrupt and it stays skipped for the whole run.
func (f *File) readScan(specIdx int) ([]mzml.Peak, error) {
	f.mu.RLock()
	peaks, ok := f.cache[specIdx]
	bad := f.corrupt[specIdx]
	f.mu.RUnlock()
	if bad {
		return nil, ErrCorruptScan
	}
	if ok {
		return peaks, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// another reader may have decoded it while we waited for the lock
	if peaks, ok := f.cache[specIdx]; ok {
		return peaks, nil
	}
	if f.corrupt[specIdx] {
		return nil, ErrCorruptScan
	}

	peaks, err := f.mz.ReadScan(specIdx)
	if err == nil && !mzSorted(peaks) {
		err = mzml.ErrMalformedPeaks
	}
	if err != nil {
		f.corrupt[specIdx] = true
		f.nCorrupt++
		log.Printf("skipping corrupt scan %d in %s: %v", specIdx, f.path, err)
		return nil, fmt.Errorf("%w: scan %d: %v", ErrCorruptScan, specIdx, err)
	}
	if len(f.cache) >= maxCachedScans {
		// drop an arbitrary entry, decode-once is only an optimization
		for k := range f.cache {
			delete(f.cache, k)
			break
		}
	}
	f.cache[specIdx] = peaks
	return peaks, nil
}

func mzSorted(peaks []mzml.Peak) bool {
	for i := 1; i < len(peaks); i++ {
		if peaks[i].Mz < peaks[i-1].Mz {
			return false
		}
	}
	return true
}
