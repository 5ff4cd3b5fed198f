package catalog

import "testing"

// =============================================================================
// Registry
// =============================================================================

func registerTestKinds(t *testing.T) {
	t.Helper()
	Clear()
	t.Cleanup(Clear)

	Register(testDiagnosisDef())
	Register(testDrugDef())
}

func TestRegistry(t *testing.T) {
	registerTestKinds(t)

	if Count() != 2 {
		t.Fatalf("Count = %d, want 2", Count())
	}

	def, ok := Get(KindDrug)
	if !ok {
		t.Fatal("Get(KindDrug) not found")
	}
	if def.Table != "drugs" {
		t.Errorf("Table = %q, want %q", def.Table, "drugs")
	}

	if _, ok := Get("procedure"); ok {
		t.Error("Get of unregistered kind succeeded")
	}

	kinds := Kinds()
	if len(kinds) != 2 || kinds[0] != KindDiagnosis || kinds[1] != KindDrug {
		t.Errorf("Kinds = %v, want sorted [diagnosis-code drug]", kinds)
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"empty key", Definition{Table: "t", Fields: []FieldSpec{{Name: "a", Identity: true}}}},
		{"no table", Definition{Key: "x", Fields: []FieldSpec{{Name: "a", Identity: true}}}},
		{"no identity field", Definition{Key: "x", Table: "t", Fields: []FieldSpec{{Name: "a"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Clear()
			t.Cleanup(Clear)

			defer func() {
				if recover() == nil {
					t.Error("Register did not panic")
				}
			}()
			Register(tt.def)
		})
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(testDrugDef())
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	Register(testDrugDef())
}

// =============================================================================
// Header matching
// =============================================================================

func TestMatchHeaders(t *testing.T) {
	registerTestKinds(t)

	tests := []struct {
		name     string
		headers  []string
		wantKind Kind
		wantOK   bool
	}{
		{"diagnosis headers", []string{"code", "condition_name"}, KindDiagnosis, true},
		{"drug headers", []string{"generic_name", "product_name"}, KindDrug, true},
		{"case insensitive", []string{"Generic_Name", "PRODUCT_NAME"}, KindDrug, true},
		{"padded headers", []string{" code ", "condition_name"}, KindDiagnosis, true},
		{"partial overlap above threshold", []string{"code", "strength"}, KindDiagnosis, true},
		{"no overlap", []string{"order_id", "quantity"}, "", false},
		{"empty headers", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := BestMatch(tt.headers)
			if ok != tt.wantOK {
				t.Fatalf("BestMatch ok = %v, want %v", ok, tt.wantOK)
			}
			if kind != tt.wantKind {
				t.Errorf("BestMatch kind = %q, want %q", kind, tt.wantKind)
			}
		})
	}
}

func TestMatchHeadersRanking(t *testing.T) {
	registerTestKinds(t)

	// All drug fields plus one diagnosis field: drug must rank first.
	headers := []string{"generic_name", "product_name", "code"}
	matches := MatchHeaders(headers)

	if len(matches) == 0 {
		t.Fatal("no matches returned")
	}
	if matches[0].Kind != KindDrug {
		t.Errorf("top match = %q, want %q", matches[0].Kind, KindDrug)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted by score: %v", matches)
		}
	}
}
