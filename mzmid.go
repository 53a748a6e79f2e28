// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/midtools/mzmid/internal/mid"
	"github.com/midtools/mzmid/internal/percolator"
)

// Program name and version, reported in the JSON run report
const progName = "mzMID"

var progVersion = `Unknown`

// Format of output, if it ever changes we should still be able to parse
// output from old versions
const outputFormatVersion = "1.0"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	psmsFilename   string   // Percolator PSM table (first positional argument)
	mzMLFilenames  []string // spectral files, indexed by the table's file_idx
	outFilename    *string  // Filename where the MID table will be written
	reportFilename *string  // Filename where the JSON run report will be written
	paramsFilename *string  // Optional YAML parameter file
	isotopomers    *string  // Isotopomer offsets as specified by the user
	offsets        []int    // parsed isotopomer offsets
	qValue         *float64 // max percolator q-value for a PSM to be quantified
	requireUnique  *bool    // only quantify peptides unique to one protein
	residue        *string  // labeled residue for the residue-count filter
	minResidue     *int     // minimum count of the labeled residue
	rtWindow       *float64 // retention time window half-width (seconds)
	mzTolPPM       *float64 // max mz error when matching isotopomer peaks
	rtUnit         *string  // unit of the PSM table's retention time column
	workers        *int     // number of spectral files processed concurrently
	verbosity      int      // Verbosity of progress messages (infoDefault...)
	args           []string // Additional values passed on the command line
}

// Parameter file mirroring the command line options. Only values for
// options that were not explicitly set on the command line are applied.
type paramsFile struct {
	Isotopomers     []int    `yaml:"isotopomers"`
	QValue          *float64 `yaml:"qValue"`
	RequireUnique   *bool    `yaml:"requireUnique"`
	Residue         *string  `yaml:"residue"`
	MinResidueCount *int     `yaml:"minResidueCount"`
	RTWindow        *float64 `yaml:"rtWindow"`
	MzTolPPM        *float64 `yaml:"mzTolPPM"`
	RTUnit          *string  `yaml:"rtUnit"`
	Workers         *int     `yaml:"workers"`
}

// parseOffsets parses a comma-separated isotopomer offset list like
// "0,1,2,3,4,5,6"
func parseOffsets(s string) ([]int, error) {
	var offsets []int
	for _, part := range strings.Split(s, ",") {
		o, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid isotopomer offset %q", part)
		}
		offsets = append(offsets, o)
	}
	return offsets, nil
}

// applyParamsFile fills options from the YAML parameter file, without
// overriding options that were explicitly set on the command line
func applyParamsFile(par *params) error {
	if *par.paramsFilename == "" {
		return nil
	}
	data, err := os.ReadFile(*par.paramsFilename)
	if err != nil {
		return err
	}
	var pf paramsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return err
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if pf.Isotopomers != nil && !set["iso"] {
		strs := make([]string, len(pf.Isotopomers))
		for i, o := range pf.Isotopomers {
			strs[i] = strconv.Itoa(o)
		}
		*par.isotopomers = strings.Join(strs, ",")
	}
	if pf.QValue != nil && !set["q"] {
		*par.qValue = *pf.QValue
	}
	if pf.RequireUnique != nil && !set["unique"] {
		*par.requireUnique = *pf.RequireUnique
	}
	if pf.Residue != nil && !set["residue"] {
		*par.residue = *pf.Residue
	}
	if pf.MinResidueCount != nil && !set["minresidue"] {
		*par.minResidue = *pf.MinResidueCount
	}
	if pf.RTWindow != nil && !set["rtwin"] {
		*par.rtWindow = *pf.RTWindow
	}
	if pf.MzTolPPM != nil && !set["ppm"] {
		*par.mzTolPPM = *pf.MzTolPPM
	}
	if pf.RTUnit != nil && !set["rtunit"] {
		*par.rtUnit = *pf.RTUnit
	}
	if pf.Workers != nil && !set["workers"] {
		*par.workers = *pf.Workers
	}
	return nil
}

// sanatizeParams does some checks on parameters, and fills missing
// filenames if possible
func sanatizeParams(par *params) {
	exeName := filepath.Base(os.Args[0])

	if len(par.args) < 2 {
		fmt.Fprintf(os.Stderr, `First argument must be the percolator PSM file,
followed by one or more mzML files.
Type %s --help for usage
`, exeName)
		os.Exit(2)
	}
	par.psmsFilename = par.args[0]
	par.mzMLFilenames = par.args[1:]

	if err := applyParamsFile(par); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid parameter file: %v\n", err)
		os.Exit(2)
	}

	var extension = filepath.Ext(par.psmsFilename)
	var startName = par.psmsFilename[0 : len(par.psmsFilename)-len(extension)]
	if *par.outFilename == "" {
		*par.outFilename = startName + "-mid.txt"
	}
	if *par.reportFilename == "" {
		*par.reportFilename = startName + "-mid.json"
	}

	var err error
	par.offsets, err = parseOffsets(*par.isotopomers)
	if err != nil {
		fmt.Fprintf(os.Stderr, `Invalid isotopomer list.
Type %s --help for usage
`, exeName)
		os.Exit(2)
	}
	if *par.rtUnit != "sec" && *par.rtUnit != "min" {
		fmt.Fprintf(os.Stderr, `Invalid value for parameter 'rtunit', must be "sec" or "min".
Type %s --help for usage
`, exeName)
		os.Exit(2)
	}
	if *par.workers < 1 {
		*par.workers = runtime.NumCPU()
	}
}

// resolveSpectrumFiles fills in the spectral file of each
// identification: the table's filename column when present, otherwise
// the mzML file at position file_idx on the command line
func resolveSpectrumFiles(ids []percolator.Identification, mzMLFilenames []string) []percolator.Identification {
	for i := range ids {
		if ids[i].SpectrumFile != "" {
			continue
		}
		idx := ids[i].FileIdx
		if idx < 0 {
			idx = 0
		}
		if idx >= len(mzMLFilenames) {
			// absorbed later as a per-record source error
			log.Printf("no mzML file for file_idx %d (peptide %s)", idx, ids[i].Sequence)
			continue
		}
		ids[i].SpectrumFile = mzMLFilenames[idx]
	}
	return ids
}

type runReport struct {
	MzMIDVersion string
	Isotopomers  []int
	QValue       float64
	MzTolPPM     float64
	RTWindow     float64
	Stats        mid.Stats
}

func writeReport(report runReport, par params) error {
	f, err := os.Create(*par.reportFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	e := json.NewEncoder(f)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	return e.Encode(report)
}

// writeMIDTable writes one row per identification: peptide identity,
// isotopomer areas and fractions aligned with the offset list, and the
// validity flag
func writeMIDTable(records []mid.Record, offsets []int, par params) error {
	f, err := os.Create(*par.outFilename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	header := []string{"sequence", "charge", "spectrum_file", "rt", "valid"}
	for _, o := range offsets {
		header = append(header, fmt.Sprintf("m%d_area", o))
	}
	for _, o := range offsets {
		header = append(header, fmt.Sprintf("m%d_frac", o))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Sequence,
			strconv.Itoa(rec.Charge),
			rec.SpectrumFile,
			strconv.FormatFloat(rec.RetentionTime, 'f', 4, 64),
			strconv.FormatBool(rec.Valid),
		}
		for _, a := range rec.Areas {
			row = append(row, strconv.FormatFloat(a, 'g', -1, 64))
		}
		for _, fr := range rec.Fractions {
			row = append(row, strconv.FormatFloat(fr, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// quantifyMIDs glues together all the steps of a quantitation run:
// Read the percolator PSM table
// Filter identifications for quantitation
// Extract and integrate isotopomer traces per peptide
// Write the MID table and the JSON run report
func quantifyMIDs(par params) {
	rtUnit := percolator.RTSeconds
	if *par.rtUnit == "min" {
		rtUnit = percolator.RTMinutes
	}

	t := time.Now()
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Reading identifications from %s: ", par.psmsFilename)
	}

	f, err := os.Open(par.psmsFilename)
	if err != nil {
		log.Fatalf("Open: PSM file %v", err)
	}
	ids, err := percolator.Read(f, rtUnit)
	f.Close()
	if err != nil {
		log.Fatalf("percolator.Read: error return %v", err)
	}
	nRead := len(ids)
	ids = percolator.Dedupe(ids)

	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
		t = time.Now()
		fmt.Fprintf(os.Stderr, "Filtering identifications: ")
	}

	var residue rune
	if *par.residue != "" {
		residue = []rune(*par.residue)[0]
	}
	ids = mid.Filter(ids, mid.FilterParams{
		QValueMax:       *par.qValue,
		RequireUnique:   *par.requireUnique,
		Residue:         residue,
		MinResidueCount: *par.minResidue,
	})
	ids = resolveSpectrumFiles(ids, par.mzMLFilenames)

	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
		t = time.Now()
		fmt.Fprintf(os.Stderr, "Quantifying %d identifications: ", len(ids))
	}

	quantPar := mid.Params{
		Offsets:       par.offsets,
		TolerancePPM:  *par.mzTolPPM,
		RTHalfWidth:   *par.rtWindow,
		Workers:       *par.workers,
		TraceObserver: debugTraceObserver(),
	}
	if err := quantPar.Validate(); err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	// A run is aborted as a whole or not at all; interrupt cancels
	// all workers
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	records, stats, err := mid.Assemble(ctx, ids, quantPar)
	if err != nil {
		log.Fatalf("mid.Assemble: error return %v", err)
	}

	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
		t = time.Now()
		fmt.Fprintf(os.Stderr, "Writing MID table to %s: ", *par.outFilename)
	}

	if err := writeMIDTable(records, par.offsets, par); err != nil {
		log.Fatalf("writeMIDTable: error return %v", err)
	}
	report := runReport{
		MzMIDVersion: outputFormatVersion,
		Isotopomers:  par.offsets,
		QValue:       *par.qValue,
		MzTolPPM:     *par.mzTolPPM,
		RTWindow:     *par.rtWindow,
		Stats:        stats,
	}
	if err := writeReport(report, par); err != nil {
		log.Fatalf("writeReport: error return %v", err)
	}

	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
	}
	if par.verbosity != infoSilent {
		fmt.Fprintf(os.Stderr,
			"PSMs read: %d Quantified: %d Source errors: %d No signal: %d Corrupt scans: %d\n",
			nRead, stats.Processed, stats.SourceErrors, stats.NoSignal, stats.CorruptScans)
	}
}

func usage() {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr,
		`USAGE:
  %s [options] <PSM file> <mzML file> [<mzML file>...]

  This program computes mass isotopomer distributions (MID) for
  peptides identified in a percolator PSM table, by integrating
  extracted ion chromatograms from the accompanying mzML files.
  The mzML files are matched to identifications through the table's
  file_idx column (or its filename column, when present).

OPTIONS:
`, exeName)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr,
		`
USAGE EXAMPLES:
  %s percolator.target.psms.txt sample.mzML
    Quantify isotopomers 0-6 of all confidently identified peptides in
    sample.mzML, write the MID table to percolator.target.psms-mid.txt
    and the run report to percolator.target.psms-mid.json.

  %s -iso 0,1,2,3 -residue K -minresidue 1 -q 0.005 psms.txt f1.mzML f2.mzML
    Idem for a lysine labeling experiment with two fractions, requiring
    at least one lysine per peptide and a stricter q-value.
`, exeName, exeName)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	var par params

	par.outFilename = flag.String("o",
		"",
		"`filename` of the output MID table")
	par.reportFilename = flag.String("report",
		"",
		"`filename` for the JSON run report")
	par.paramsFilename = flag.String("params",
		"",
		"YAML parameter `filename`. Command line options take precedence.")
	par.isotopomers = flag.String("iso",
		"0,1,2,3,4,5,6",
		"comma-separated `list` of isotopomer offsets to extract (0 = monoisotopic)")
	par.qValue = flag.Float64("q",
		0.01,
		`max percolator q-value of PSMs to quantify. 0 disables the filter.`)
	par.requireUnique = flag.Bool("unique", false,
		`only quantify peptides that are unique to one protein`)
	par.residue = flag.String("residue",
		"",
		`labeled amino acid `+"`residue`"+` (single letter code) that peptides
must contain to be quantified, e.g. "K" for lysine labeling.
Leave empty for heavy water labeling.`)
	par.minResidue = flag.Int("minresidue",
		0,
		`minimum number of labeled residues per peptide. 0 disables the filter.`)
	par.rtWindow = flag.Float64("rtwin",
		30.0,
		`retention time window half-width (seconds) around the elution of an
identification, over which isotopomer traces are extracted`)
	par.mzTolPPM = flag.Float64("ppm",
		25.0,
		`max mz error (ppm) when matching isotopomer peaks`)
	par.rtUnit = flag.String("rtunit",
		"sec",
		`unit of the retention time column of the PSM table ("sec" or "min")`)
	par.workers = flag.Int("workers",
		0,
		`number of spectral files processed concurrently.
If 0 (default), the number of CPUs is used.`)
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
	flag.Usage = usage
	flag.Parse()
	if *version {
		fmt.Fprintf(os.Stderr, "%s version %s\n", progName, progVersion)
		return
	}
	if *verbose {
		par.verbosity = infoVerbose
	}
	if *quiet {
		par.verbosity = infoSilent
	}
	par.args = flag.Args()

	sanatizeParams(&par)
	quantifyMIDs(par)
}
