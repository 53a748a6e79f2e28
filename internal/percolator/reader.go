package percolator

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column names as written by crux percolator. The retention time and
// file name columns are optional extensions some pipelines add.
const (
	colSequence = "sequence"
	colCharge   = "charge"
	colScan     = "scan"
	colQValue   = "percolator q-value"
	colProtein  = "protein id"
	colFileIdx  = "file_idx"
	colFile     = "filename"
	colRT       = "retention time"
)

// Read parses a percolator tab-delimited PSM table.
// rtUnit declares the unit of the optional retention time column;
// values are normalized to seconds.
// Rows that are missing required fields or hold unparseable numbers
// are rejected with an error wrapping ErrMalformedRecord.
func Read(reader io.Reader, rtUnit RTUnit) ([]Identification, error) {
	r := csv.NewReader(reader)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("percolator: reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colSequence, colCharge, colQValue} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, required)
		}
	}

	var ids []Identification
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("percolator: line %d: %w", line, err)
		}
		id, err := parseRow(row, col, rtUnit)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func field(row []string, col map[string]int, name string) (string, bool) {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

func parseRow(row []string, col map[string]int, rtUnit RTUnit) (Identification, error) {
	var id Identification

	seq, _ := field(row, col, colSequence)
	if seq == "" {
		return id, fmt.Errorf("%w: empty sequence", ErrMalformedRecord)
	}
	id.Sequence = seq

	chargeStr, _ := field(row, col, colCharge)
	charge, err := strconv.Atoi(chargeStr)
	if err != nil || charge < 1 {
		return id, fmt.Errorf("%w: charge %q", ErrMalformedRecord, chargeStr)
	}
	id.Charge = charge

	qStr, _ := field(row, col, colQValue)
	q, err := strconv.ParseFloat(qStr, 64)
	if err != nil || q < 0 {
		return id, fmt.Errorf("%w: q-value %q", ErrMalformedRecord, qStr)
	}
	id.QValue = q

	if s, ok := field(row, col, colScan); ok && s != "" {
		scan, err := strconv.Atoi(s)
		if err != nil || scan < 0 {
			return id, fmt.Errorf("%w: scan %q", ErrMalformedRecord, s)
		}
		id.Scan = scan
	}

	id.RetentionTime = -1
	if s, ok := field(row, col, colRT); ok && s != "" {
		rt, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return id, fmt.Errorf("%w: retention time %q", ErrMalformedRecord, s)
		}
		if rtUnit == RTMinutes {
			rt *= 60
		}
		id.RetentionTime = rt
	}
	if id.RetentionTime < 0 && id.Scan == 0 {
		return id, fmt.Errorf("%w: neither scan nor retention time present", ErrMalformedRecord)
	}

	// A peptide is unique when it maps to one and only one protein;
	// percolator separates multiple accessions with commas
	if s, ok := field(row, col, colProtein); ok {
		id.ProteinID = s
		id.Unique = s != "" && !strings.Contains(s, ",")
	}

	id.FileIdx = -1
	if s, ok := field(row, col, colFileIdx); ok && s != "" {
		idx, err := strconv.Atoi(s)
		if err != nil || idx < 0 {
			return id, fmt.Errorf("%w: file_idx %q", ErrMalformedRecord, s)
		}
		id.FileIdx = idx
	}
	if s, ok := field(row, col, colFile); ok {
		id.SpectrumFile = s
	}

	return id, nil
}

// Dedupe removes duplicate sequence/charge pairs from the same source
// file, keeping the record with the lowest q-value. Input order is
// preserved for the records that are kept.
func Dedupe(ids []Identification) []Identification {
	type key struct {
		seq    string
		charge int
		file   string
		idx    int
	}
	best := make(map[key]int, len(ids))
	for i, id := range ids {
		k := key{id.Sequence, id.Charge, id.SpectrumFile, id.FileIdx}
		if j, ok := best[k]; !ok || id.QValue < ids[j].QValue {
			best[k] = i
		}
	}
	out := make([]Identification, 0, len(best))
	for i, id := range ids {
		k := key{id.Sequence, id.Charge, id.SpectrumFile, id.FileIdx}
		if best[k] == i {
			out = append(out, id)
		}
	}
	return out
}
