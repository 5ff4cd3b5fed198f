package kinds

import "github.com/reliantlabs/medcat/internal/catalog"

func init() {
	registerDrugs()
}

// Drugs are keyed by generic name. Names arrive from free-text extraction
// and upstream labels with inconsistent casing, so identity comparison is
// case-insensitive (folded after NFKC normalization).
func registerDrugs() {
	catalog.Register(catalog.Definition{
		Key:          catalog.KindDrug,
		Label:        "Drugs",
		Table:        "drugs",
		FoldIdentity: true,
		Fields: []catalog.FieldSpec{
			{Name: "generic_name", Label: "Generic Name", Required: true, Identity: true},
			{Name: "ndc", Label: "NDC"},
			{Name: "product_name", Label: "Product Name"},
			{Name: "manufacturer", Label: "Manufacturer"},
			{Name: "dosage_form", Label: "Dosage Form"},
			{Name: "route_of_administration", Label: "Route of Administration"},
			{Name: "active_ingredients", Label: "Active Ingredients"},
		},
	})
}
