package mid

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/midtools/mzmid/internal/isotope"
	"github.com/midtools/mzmid/internal/percolator"
	"github.com/midtools/mzmid/internal/spectra"
	"github.com/midtools/mzmid/internal/xic"
)

// TraceObserver receives the extracted traces of a record before
// integration.
type TraceObserver func(id percolator.Identification, offsets []int, traces []isotope.Trace)

// Assemble produces one MID record per identification, in input order.
// Identifications are batched by spectral file so every file is opened
// and decoded once; files are processed concurrently by up to
// par.Workers goroutines. A missing spectral file or unresolvable scan
// zeroes the affected records and the run continues; cancelling ctx
// aborts the whole run.
func Assemble(ctx context.Context, ids []percolator.Identification, par Params) ([]Record, Stats, error) {
	var stats Stats
	if err := par.Validate(); err != nil {
		return nil, stats, err
	}

	records := make([]Record, len(ids))
	stats.Processed = len(ids)

	// batch by source file, keeping the original record indices so the
	// output order matches the input no matter how workers interleave
	byFile := make(map[string][]int)
	var files []string
	for i, id := range ids {
		if _, ok := byFile[id.SpectrumFile]; !ok {
			files = append(files, id.SpectrumFile)
		}
		byFile[id.SpectrumFile] = append(byFile[id.SpectrumFile], i)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(par.Workers)
	for _, file := range files {
		file := file
		idxs := byFile[file]
		g.Go(func() error {
			return quantifyFile(ctx, file, idxs, ids, records, par, &mu, &stats)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}

func quantifyFile(ctx context.Context, file string, idxs []int,
	ids []percolator.Identification, records []Record, par Params,
	mu *sync.Mutex, stats *Stats) error {

	f, err := spectra.Open(file)
	if err != nil {
		// fatal for this file's identifications only
		log.Printf("%v", err)
		mu.Lock()
		stats.SourceErrors += len(idxs)
		mu.Unlock()
		for _, i := range idxs {
			records[i] = emptyRecord(ids[i], par)
		}
		return nil
	}

	var noSignal, sourceErrs int
	for _, i := range idxs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, srcErr := quantify(f, ids[i], par)
		records[i] = rec
		if srcErr {
			sourceErrs++
		} else if !rec.Valid {
			noSignal++
		}
	}

	mu.Lock()
	stats.SourceErrors += sourceErrs
	stats.NoSignal += noSignal
	stats.CorruptScans += f.CorruptScans()
	mu.Unlock()
	return nil
}

// quantify extracts and integrates the isotopomer traces of a single
// identification. The returned bool reports a per-record source
// failure (scan number not present in the file); such records are
// emitted zeroed and invalid.
func quantify(f *spectra.File, id percolator.Identification, par Params) (Record, bool) {
	rec := emptyRecord(id, par)

	rt := id.RetentionTime
	if rt < 0 {
		var err error
		rt, err = f.RetentionTimeOfScan(id.Scan)
		if err != nil {
			log.Printf("%s: no scan %d for peptide %s/%d", f.Path(), id.Scan, id.Sequence, id.Charge)
			return rec, true
		}
	}
	rec.RetentionTime = rt

	mass, err := isotope.PepMass(id.Sequence)
	if err != nil {
		log.Printf("skipping peptide %s: %v", id.Sequence, err)
		return rec, false
	}

	scans := f.ScansInWindow(rt, par.RTHalfWidth)
	traces := isotope.Extract(scans, mass, id.Charge, par.Offsets, par.TolerancePPM)
	if par.TraceObserver != nil {
		par.TraceObserver(id, par.Offsets, traces)
	}
	for i := range traces {
		rec.Areas[i] = xic.Integrate(traces[i])
	}
	// the first configured offset is the monoisotopic channel in every
	// practical offset list ({0,1,...}); no signal there marks the
	// record invalid
	rec.Valid = rec.Areas[0] > 0
	if rec.Valid {
		sum := floats.Sum(rec.Areas)
		for i, a := range rec.Areas {
			rec.Fractions[i] = a / sum
		}
	}
	return rec, false
}

func emptyRecord(id percolator.Identification, par Params) Record {
	return Record{
		Sequence:      id.Sequence,
		Charge:        id.Charge,
		SpectrumFile:  id.SpectrumFile,
		RetentionTime: id.RetentionTime,
		Areas:         make([]float64, len(par.Offsets)),
		Fractions:     make([]float64, len(par.Offsets)),
	}
}
