package mid

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/midtools/mzmid/internal/percolator"
)

func testIds() []percolator.Identification {
	return []percolator.Identification{
		{Sequence: "PEPTIDEK", Charge: 2, QValue: 0.001, Unique: true},
		{Sequence: "SHAREDPEP", Charge: 2, QValue: 0.005, Unique: false},
		{Sequence: "BADSCORE", Charge: 2, QValue: 0.2, Unique: true},
		{Sequence: "NALYSINE", Charge: 3, QValue: 0.002, Unique: true},
	}
}

func TestFilterQValue(t *testing.T) {
	got := Filter(testIds(), FilterParams{QValueMax: 0.01})
	if len(got) != 3 {
		t.Fatalf("Filter: %d records, should be 3", len(got))
	}
	for _, id := range got {
		if id.Sequence == "BADSCORE" {
			t.Errorf("Filter: BADSCORE passed q-value threshold")
		}
	}
}

func TestFilterUnique(t *testing.T) {
	got := Filter(testIds(), FilterParams{QValueMax: 0.01, RequireUnique: true})
	if len(got) != 2 {
		t.Fatalf("Filter: %d records, should be 2", len(got))
	}
	if got[0].Sequence != "PEPTIDEK" || got[1].Sequence != "NALYSINE" {
		t.Errorf("Filter: order not preserved: %v", got)
	}
}

func TestFilterResidueCount(t *testing.T) {
	got := Filter(testIds(), FilterParams{Residue: 'K', MinResidueCount: 1})
	// PEPTIDEK has one K, NALYSINE none
	want := []string{"PEPTIDEK"}
	var seqs []string
	for _, id := range got {
		seqs = append(seqs, id.Sequence)
	}
	if diff := cmp.Diff(want, seqs); diff != "" {
		t.Errorf("Filter mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterZeroDisables(t *testing.T) {
	got := Filter(testIds(), FilterParams{})
	if len(got) != len(testIds()) {
		t.Errorf("Filter: %d records with all criteria disabled, should be %d", len(got), len(testIds()))
	}
}

func TestFilterIdempotent(t *testing.T) {
	p := FilterParams{QValueMax: 0.01, RequireUnique: true, Residue: 'K', MinResidueCount: 1}
	once := Filter(testIds(), p)
	twice := Filter(once, p)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("Filter not idempotent (-once +twice):\n%s", diff)
	}
}
