package catalog

import "testing"

// =============================================================================
// NormalizeTerm / FoldKey
// =============================================================================

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Metformin", "Metformin"},
		{"trims whitespace", "  E11.9  ", "E11.9"},
		{"strips control chars", "Met\x00formin\t", "Metformin"},
		{"nfkc full-width", "Ｍｅｔｆｏｒｍｉｎ", "Metformin"},
		{"preserves inner space", "insulin  glargine", "insulin  glargine"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTerm(tt.input); got != tt.want {
				t.Errorf("NormalizeTerm(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFoldKey(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"case insensitive", "Metformin", "metformin", true},
		{"mixed case", "LISINOPRIL", "Lisinopril", true},
		{"different terms", "Metformin", "Lisinopril", false},
		{"sharp s folds", "Straße", "STRASSE", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FoldKey(tt.a) == FoldKey(tt.b)
			if got != tt.same {
				t.Errorf("FoldKey(%q) == FoldKey(%q): got %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

// =============================================================================
// Definition.IdentityKey
// =============================================================================

func testDiagnosisDef() Definition {
	return Definition{
		Key:   KindDiagnosis,
		Table: "diagnosis_codes",
		Fields: []FieldSpec{
			{Name: "code", Required: true, Identity: true},
			{Name: "condition_name"},
		},
	}
}

func testDrugDef() Definition {
	return Definition{
		Key:          KindDrug,
		Table:        "drugs",
		FoldIdentity: true,
		Fields: []FieldSpec{
			{Name: "generic_name", Required: true, Identity: true},
			{Name: "product_name"},
		},
	}
}

func TestIdentityKey(t *testing.T) {
	diag := testDiagnosisDef()
	drug := testDrugDef()

	tests := []struct {
		name    string
		def     Definition
		rec     Record
		wantKey string
		wantOK  bool
	}{
		{"diagnosis exact", diag, Record{"code": "E11.9"}, "E11.9", true},
		{"diagnosis preserves case", diag, Record{"code": "e11.9"}, "e11.9", true},
		{"diagnosis trims", diag, Record{"code": " E11.9 "}, "E11.9", true},
		{"diagnosis missing field", diag, Record{"condition_name": "Diabetes"}, "", false},
		{"diagnosis empty value", diag, Record{"code": "   "}, "", false},
		{"drug folds case", drug, Record{"generic_name": "Metformin"}, "metformin", true},
		{"drug already lower", drug, Record{"generic_name": "metformin"}, "metformin", true},
		{"drug missing field", drug, Record{"product_name": "Glucophage"}, "", false},
		{"drug empty value", drug, Record{"generic_name": ""}, "", false},
		{"nil record", diag, nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.def.IdentityKey(tt.rec)
			if ok != tt.wantOK {
				t.Fatalf("IdentityKey ok = %v, want %v", ok, tt.wantOK)
			}
			if key != tt.wantKey {
				t.Errorf("IdentityKey = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

func TestIdentityKeyAsymmetry(t *testing.T) {
	// The same two casings must collide for drugs and stay distinct for
	// diagnosis codes.
	drug := testDrugDef()
	a, _ := drug.IdentityKey(Record{"generic_name": "Metformin"})
	b, _ := drug.IdentityKey(Record{"generic_name": "METFORMIN"})
	if a != b {
		t.Errorf("drug keys differ across casing: %q vs %q", a, b)
	}

	diag := testDiagnosisDef()
	c, _ := diag.IdentityKey(Record{"code": "E11.9"})
	d, _ := diag.IdentityKey(Record{"code": "e11.9"})
	if c == d {
		t.Errorf("diagnosis keys collide across casing: %q", c)
	}
}

// =============================================================================
// Record / Conform
// =============================================================================

func TestRecordClone(t *testing.T) {
	orig := Record{"code": "E11.9", "condition_name": "Diabetes"}
	clone := orig.Clone()

	clone["code"] = "I10"
	if orig["code"] != "E11.9" {
		t.Errorf("Clone shares storage with original: %q", orig["code"])
	}
}

func TestConform(t *testing.T) {
	def := testDiagnosisDef()

	tests := []struct {
		name string
		in   Record
		want Record
	}{
		{
			"drops unknown fields",
			Record{"code": "E11.9", "source_row": "17"},
			Record{"code": "E11.9"},
		},
		{
			"trims values",
			Record{"code": " E11.9 ", "condition_name": " Diabetes "},
			Record{"code": "E11.9", "condition_name": "Diabetes"},
		},
		{
			"drops empty values",
			Record{"code": "E11.9", "condition_name": "   "},
			Record{"code": "E11.9"},
		},
		{
			"empty record",
			Record{},
			Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := def.Conform(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Conform = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Conform[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
