// Package isotope computes isotopomer target m/z values for peptides
// and extracts their ion chromatograms from MS1 scans.
package isotope

import "errors"

const massProton = float64(1.007276466879)
const massH2O = float64(18.0105647)

// Mass spacing between adjacent isotope peaks (C13 - C12).
const massIsotopeUnit = float64(1.00335483)

// Masses of amino acids (minus H2O)
var aaMass = map[rune]float64{
	'A': 71.0371138,
	'C': 103.0091848,
	'D': 115.0269430,
	'E': 129.0425931,
	'F': 147.0684139,
	'G': 57.0214637,
	'H': 137.0589119,
	'I': 113.0840640,
	'K': 128.0949630,
	'L': 113.0840640,
	'M': 131.0404849,
	'N': 114.0429274,
	'P': 97.0527638,
	'O': 237.1477269, // Pyrrolysine
	'Q': 128.0585775,
	'R': 156.1011110,
	'S': 87.0320284,
	'T': 101.0476785,
	'U': 144.9595902, // Selenocysteine
	'V': 99.0684139,
	'W': 186.0793129,
	'Y': 163.0633285,
}

var ErrInvalidAminoAcid = errors.New("isotope: invalid amino acid")

// PepMass computes the monoisotopic neutral mass of the peptide
func PepMass(pepSeq string) (float64, error) {
	m := massH2O
	for _, aa := range pepSeq {
		aam, ok := aaMass[aa]
		if !ok {
			return 0.0, ErrInvalidAminoAcid
		}
		m += aam
	}
	return m, nil
}

// TargetMz returns the m/z of isotopomer peak `offset` (0 = monoisotopic)
// for the given neutral mass and charge state
func TargetMz(mass float64, charge, offset int) float64 {
	fCharge := float64(charge)
	return (mass + float64(offset)*massIsotopeUnit + fCharge*massProton) / fCharge
}
