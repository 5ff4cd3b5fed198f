package reconcile

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/reliantlabs/medcat/internal/catalog"
	_ "github.com/reliantlabs/medcat/internal/catalog/kinds"
)

func diag(code string) catalog.Record {
	if code == "" {
		return catalog.Record{}
	}
	return catalog.Record{"code": code}
}

func drug(name string) catalog.Record {
	if name == "" {
		return catalog.Record{}
	}
	return catalog.Record{"generic_name": name}
}

func indices(class []Candidate) []int {
	out := make([]int, len(class))
	for i, c := range class {
		out[i] = c.Index
	}
	return out
}

// =============================================================================
// Partition totality, disjointness, order
// =============================================================================

func TestReconcilePartition(t *testing.T) {
	tests := []struct {
		name          string
		kind          catalog.Kind
		candidates    []catalog.Record
		existing      []catalog.Record
		wantNew       []int
		wantDuplicate []int
		wantInvalid   []int
		wantBatchDups int
	}{
		{
			name:       "all new",
			kind:       catalog.KindDiagnosis,
			candidates: []catalog.Record{diag("E11.9"), diag("I10")},
			existing:   nil,
			wantNew:    []int{0, 1},
		},
		{
			name:          "all duplicate",
			kind:          catalog.KindDiagnosis,
			candidates:    []catalog.Record{diag("E11.9"), diag("I10")},
			existing:      []catalog.Record{diag("E11.9"), diag("I10")},
			wantDuplicate: []int{0, 1},
		},
		{
			name:        "all invalid",
			kind:        catalog.KindDiagnosis,
			candidates:  []catalog.Record{diag(""), {"condition_name": "Hypertension"}},
			existing:    []catalog.Record{diag("I10")},
			wantInvalid: []int{0, 1},
		},
		{
			name: "mixed classes preserve order",
			kind: catalog.KindDiagnosis,
			candidates: []catalog.Record{
				diag("E11.9"), // new
				diag("I10"),   // duplicate
				diag(""),      // invalid
				diag("J45"),   // new
				diag("I10"),   // duplicate (and batch repeat)
				diag(""),      // invalid
			},
			existing:      []catalog.Record{diag("I10")},
			wantNew:       []int{0, 3},
			wantDuplicate: []int{1, 4},
			wantInvalid:   []int{2, 5},
			wantBatchDups: 1,
		},
		{
			name:       "empty candidates",
			kind:       catalog.KindDiagnosis,
			candidates: nil,
			existing:   []catalog.Record{diag("E11.9")},
		},
		{
			name:       "empty corpus",
			kind:       catalog.KindDrug,
			candidates: []catalog.Record{drug("Metformin")},
			existing:   nil,
			wantNew:    []int{0},
		},
		{
			name: "intra-batch repeats both classify new",
			kind: catalog.KindDiagnosis,
			candidates: []catalog.Record{
				diag("E11.9"),
				diag("E11.9"),
				diag(""),
			},
			existing:      nil,
			wantNew:       []int{0, 1},
			wantInvalid:   []int{2},
			wantBatchDups: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Reconcile(tt.candidates, tt.kind, tt.existing)
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}

			if p.Total() != len(tt.candidates) {
				t.Errorf("Total = %d, want %d", p.Total(), len(tt.candidates))
			}
			if got := indices(p.New); !equalInts(got, tt.wantNew) {
				t.Errorf("New indices = %v, want %v", got, tt.wantNew)
			}
			if got := indices(p.Duplicate); !equalInts(got, tt.wantDuplicate) {
				t.Errorf("Duplicate indices = %v, want %v", got, tt.wantDuplicate)
			}
			if got := indices(p.Invalid); !equalInts(got, tt.wantInvalid) {
				t.Errorf("Invalid indices = %v, want %v", got, tt.wantInvalid)
			}
			if p.BatchDuplicates != tt.wantBatchDups {
				t.Errorf("BatchDuplicates = %d, want %d", p.BatchDuplicates, tt.wantBatchDups)
			}

			assertDisjoint(t, p, len(tt.candidates))
		})
	}
}

// assertDisjoint verifies every input index appears in exactly one class.
func assertDisjoint(t *testing.T, p Partition, total int) {
	t.Helper()

	seen := make(map[int]int)
	for _, class := range [][]Candidate{p.New, p.Duplicate, p.Invalid} {
		for _, c := range class {
			seen[c.Index]++
		}
	}

	for i := 0; i < total; i++ {
		if seen[i] != 1 {
			t.Errorf("index %d appears %d times across classes, want exactly 1", i, seen[i])
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Determinism and purity
// =============================================================================

func TestReconcileDeterministic(t *testing.T) {
	candidates := []catalog.Record{
		diag("E11.9"), diag("I10"), diag(""), diag("J45"), diag("E11.9"),
	}
	existing := []catalog.Record{diag("I10"), diag("J45")}

	first, err := Reconcile(candidates, catalog.KindDiagnosis, existing)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	second, err := Reconcile(candidates, catalog.KindDiagnosis, existing)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs produced different partitions:\n%+v\n%+v", first, second)
	}
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	candidates := []catalog.Record{drug(" Metformin "), drug("")}
	existing := []catalog.Record{drug("metformin")}

	if _, err := Reconcile(candidates, catalog.KindDrug, existing); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if candidates[0]["generic_name"] != " Metformin " {
		t.Errorf("candidate value changed: %q", candidates[0]["generic_name"])
	}
	if existing[0]["generic_name"] != "metformin" {
		t.Errorf("existing value changed: %q", existing[0]["generic_name"])
	}
}

func TestReconcileUnknownKind(t *testing.T) {
	if _, err := Reconcile(nil, "procedure", nil); err == nil {
		t.Error("expected error for unregistered kind")
	}
}

// =============================================================================
// Identity case policy
// =============================================================================

func TestReconcileCasePolicy(t *testing.T) {
	tests := []struct {
		name      string
		kind      catalog.Kind
		candidate catalog.Record
		existing  catalog.Record
		wantClass string
	}{
		{
			name:      "drug different casing is duplicate",
			kind:      catalog.KindDrug,
			candidate: drug("Metformin"),
			existing:  drug("metformin"),
			wantClass: "duplicate",
		},
		{
			name:      "drug exact casing is duplicate",
			kind:      catalog.KindDrug,
			candidate: drug("metformin"),
			existing:  drug("metformin"),
			wantClass: "duplicate",
		},
		{
			name:      "diagnosis different casing is new",
			kind:      catalog.KindDiagnosis,
			candidate: diag("e11.9"),
			existing:  diag("E11.9"),
			wantClass: "new",
		},
		{
			name:      "diagnosis exact casing is duplicate",
			kind:      catalog.KindDiagnosis,
			candidate: diag("E11.9"),
			existing:  diag("E11.9"),
			wantClass: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Reconcile([]catalog.Record{tt.candidate}, tt.kind, []catalog.Record{tt.existing})
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}

			var gotClass string
			switch {
			case len(p.New) == 1:
				gotClass = "new"
			case len(p.Duplicate) == 1:
				gotClass = "duplicate"
			case len(p.Invalid) == 1:
				gotClass = "invalid"
			}
			if gotClass != tt.wantClass {
				t.Errorf("classified %s, want %s", gotClass, tt.wantClass)
			}
		})
	}
}

func TestInvalidRegardlessOfCorpus(t *testing.T) {
	// A keyless candidate is invalid no matter what the corpus contains.
	corpora := [][]catalog.Record{
		nil,
		{diag("E11.9")},
		{diag("E11.9"), diag("I10"), diag("J45")},
	}

	for i, existing := range corpora {
		t.Run(fmt.Sprintf("corpus_%d", i), func(t *testing.T) {
			p, err := Reconcile([]catalog.Record{{}}, catalog.KindDiagnosis, existing)
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			if len(p.Invalid) != 1 || len(p.New) != 0 || len(p.Duplicate) != 0 {
				t.Errorf("keyless candidate not classified invalid: %+v", p)
			}
		})
	}
}

// =============================================================================
// KeySet
// =============================================================================

func TestBuildKeySetSkipsKeyless(t *testing.T) {
	def, _ := catalog.Get(catalog.KindDiagnosis)

	set := BuildKeySet(def, []catalog.Record{
		diag("E11.9"),
		{},                           // no identity field
		diag("   "),                  // blank identity value
		{"condition_name": "Asthma"}, // unrelated field only
		diag("I10"),
	})

	if len(set) != 2 {
		t.Fatalf("KeySet size = %d, want 2", len(set))
	}
	if !set.Contains("E11.9") || !set.Contains("I10") {
		t.Errorf("KeySet missing expected keys: %v", set)
	}
}

func TestBuildKeySetFoldsDrugNames(t *testing.T) {
	def, _ := catalog.Get(catalog.KindDrug)

	set := BuildKeySet(def, []catalog.Record{
		drug("Metformin"),
		drug("METFORMIN"),
		drug("Lisinopril"),
	})

	if len(set) != 2 {
		t.Errorf("KeySet size = %d, want 2 (folded repeats collapse)", len(set))
	}
	if !set.Contains("metformin") {
		t.Errorf("KeySet missing folded key: %v", set)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkReconcile(b *testing.B) {
	candidates := make([]catalog.Record, 2000)
	for i := range candidates {
		candidates[i] = diag(fmt.Sprintf("C%04d", i%1500))
	}
	existing := make([]catalog.Record, 5000)
	for i := range existing {
		existing[i] = diag(fmt.Sprintf("C%04d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Reconcile(candidates, catalog.KindDiagnosis, existing); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildKeySet(b *testing.B) {
	def, _ := catalog.Get(catalog.KindDrug)
	existing := make([]catalog.Record, 5000)
	for i := range existing {
		existing[i] = drug(fmt.Sprintf("Compound-%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildKeySet(def, existing)
	}
}
