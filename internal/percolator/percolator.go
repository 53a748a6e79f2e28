// Package percolator reads peptide identifications from percolator
// tab-delimited output (target.psms.txt) into validated records.
package percolator

import (
	"errors"
)

// RTUnit declares the unit of the retention time column of the input
// table. Retention times are converted to seconds at ingestion, so the
// rest of the program deals with a single unit.
type RTUnit int

const (
	RTSeconds RTUnit = iota
	RTMinutes
)

// Identification is one peptide-spectrum match from the input table.
// Immutable once parsed.
type Identification struct {
	Sequence      string
	Charge        int
	Scan          int     // instrument scan number, 0 if the table has none
	RetentionTime float64 // seconds, negative if the table has no RT column
	QValue        float64
	ProteinID     string
	Unique        bool   // matched to one and only one protein
	SpectrumFile  string // source spectral file, may be filled in by the caller
	FileIdx       int    // fraction index, -1 if the table has none
}

// ResidueCount returns the number of occurrences of residue in the
// peptide sequence. Used for labeling strategies that require a
// minimum count of the labeled residue.
func (id *Identification) ResidueCount(residue rune) int {
	n := 0
	for _, aa := range id.Sequence {
		if aa == residue {
			n++
		}
	}
	return n
}

var (
	// ErrMalformedRecord means a row of the identification table is
	// missing a required field or holds an unparseable value
	ErrMalformedRecord = errors.New("percolator: malformed record")
	// ErrMissingColumn means a required column is absent from the header
	ErrMissingColumn = errors.New("percolator: required column missing")
)
