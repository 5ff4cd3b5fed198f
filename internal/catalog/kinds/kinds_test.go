package kinds_test

import (
	"testing"

	"github.com/reliantlabs/medcat/internal/catalog"
	_ "github.com/reliantlabs/medcat/internal/catalog/kinds"
)

// =============================================================================
// Registration
// =============================================================================

func TestAllKindsRegistered(t *testing.T) {
	tests := []struct {
		kind     catalog.Kind
		table    string
		identity string
		fold     bool
	}{
		{catalog.KindDiagnosis, "diagnosis_codes", "code", false},
		{catalog.KindDrug, "drugs", "generic_name", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			def, ok := catalog.Get(tt.kind)
			if !ok {
				t.Fatalf("kind %q not registered", tt.kind)
			}
			if def.Table != tt.table {
				t.Errorf("Table = %q, want %q", def.Table, tt.table)
			}
			if def.IdentityField() != tt.identity {
				t.Errorf("IdentityField = %q, want %q", def.IdentityField(), tt.identity)
			}
			if def.FoldIdentity != tt.fold {
				t.Errorf("FoldIdentity = %v, want %v", def.FoldIdentity, tt.fold)
			}
		})
	}
}

// =============================================================================
// Identity policy per kind
// =============================================================================

func TestDrugIdentityIsCaseInsensitive(t *testing.T) {
	def, _ := catalog.Get(catalog.KindDrug)

	a, ok := def.IdentityKey(catalog.Record{"generic_name": "Metformin"})
	if !ok {
		t.Fatal("no key derived")
	}
	b, _ := def.IdentityKey(catalog.Record{"generic_name": "metformin"})
	if a != b {
		t.Errorf("drug identity is case-sensitive: %q vs %q", a, b)
	}
}

func TestDiagnosisIdentityIsCaseSensitive(t *testing.T) {
	def, _ := catalog.Get(catalog.KindDiagnosis)

	a, ok := def.IdentityKey(catalog.Record{"code": "E11.9"})
	if !ok {
		t.Fatal("no key derived")
	}
	b, _ := def.IdentityKey(catalog.Record{"code": "e11.9"})
	if a == b {
		t.Errorf("diagnosis identity folded case: %q", a)
	}
}

func TestRequiredIdentityFields(t *testing.T) {
	for _, def := range catalog.All() {
		idField := def.IdentityField()
		for _, f := range def.Fields {
			if f.Name == idField && !f.Required {
				t.Errorf("kind %q: identity field %q not marked required", def.Key, f.Name)
			}
		}
	}
}
