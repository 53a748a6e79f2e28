package mid

import "github.com/midtools/mzmid/internal/percolator"

// FilterParams select which identifications are quantified.
// A zero QValueMax or MinResidueCount disables that criterion.
type FilterParams struct {
	QValueMax       float64
	RequireUnique   bool
	Residue         rune // labeled residue, e.g. 'K' for lysine labeling
	MinResidueCount int
}

// Filter returns the identifications eligible for quantitation:
// confidence at or below the q-value threshold, optionally unique to a
// single protein, and containing at least MinResidueCount copies of
// the labeled residue. Input order is preserved and the input slice is
// not modified. Applying Filter twice gives the same result as once.
func Filter(ids []percolator.Identification, p FilterParams) []percolator.Identification {
	out := make([]percolator.Identification, 0, len(ids))
	for _, id := range ids {
		if p.QValueMax > 0 && id.QValue > p.QValueMax {
			continue
		}
		if p.RequireUnique && !id.Unique {
			continue
		}
		if p.MinResidueCount > 0 && id.ResidueCount(p.Residue) < p.MinResidueCount {
			continue
		}
		out = append(out, id)
	}
	return out
}
