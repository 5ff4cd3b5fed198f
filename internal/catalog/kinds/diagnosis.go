package kinds

import "github.com/reliantlabs/medcat/internal/catalog"

func init() {
	registerDiagnosisCodes()
}

// Diagnosis codes are keyed by the code string itself. Codes are canonical
// identifiers (ICD-10 style), so identity is case-sensitive: "e11.9" and
// "E11.9" are different entries as far as reconciliation is concerned.
func registerDiagnosisCodes() {
	catalog.Register(catalog.Definition{
		Key:   catalog.KindDiagnosis,
		Label: "Diagnosis Codes",
		Table: "diagnosis_codes",
		Fields: []catalog.FieldSpec{
			{Name: "code", Label: "Code", Required: true, Identity: true},
			{Name: "condition_name", Label: "Condition Name"},
			{Name: "icd9_code", Label: "ICD-9 Code"},
			{Name: "description", Label: "Description"},
			{Name: "synonyms", Label: "Synonyms"},
		},
	})
}
