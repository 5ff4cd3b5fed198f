// Package catalog defines the reference record kinds the server manages and
// the identity rules used to decide whether two records denote the same
// real-world entity.
//
// A Kind selects a schema (ordered field specs) and an identity policy.
// Records are flat field-to-value maps; they stay untyped because every
// ingestion path (file extraction, upstream sources, manual entry) produces
// string values that are only trusted after classification.
package catalog

import "strings"

// Kind identifies one of the managed reference datasets.
type Kind string

const (
	// KindDiagnosis is the diagnosis-code dataset. Identity is the exact
	// code string; codes are canonical, so comparison is case-sensitive.
	KindDiagnosis Kind = "diagnosis-code"

	// KindDrug is the drug dataset. Identity is the generic name compared
	// case-insensitively, since extracted free text has inconsistent casing.
	KindDrug Kind = "drug"
)

// Record is one catalog row, candidate or persisted, as a field-to-value map.
// Field names are the kind's canonical schema names. A nil Record behaves
// like an empty one.
type Record map[string]string

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldSpec describes one field of a kind's schema.
type FieldSpec struct {
	Name     string `json:"name"`     // canonical field name, e.g. "generic_name"
	Label    string `json:"label"`    // human-readable label for UIs
	Required bool   `json:"required"` // must be present and non-empty to persist cleanly
	Identity bool   `json:"identity"` // this field derives the identity key
}

// Definition describes a registered record kind: its schema, the database
// table backing it, and how identity keys are derived.
type Definition struct {
	Key    Kind        // registry key, e.g. KindDrug
	Label  string      // display name, e.g. "Drugs"
	Table  string      // backing table name
	Fields []FieldSpec // ordered schema

	// FoldIdentity makes identity comparison case-insensitive
	// (Unicode case folding after NFKC normalization).
	FoldIdentity bool
}

// IdentityField returns the name of the field that derives the identity key,
// or "" if the definition declares none.
func (d Definition) IdentityField() string {
	for _, f := range d.Fields {
		if f.Identity {
			return f.Name
		}
	}
	return ""
}

// IdentityKey derives the normalized identity key for a record.
// ok is false when the identity field is absent or empty after trimming;
// such a record is never comparable to anything.
func (d Definition) IdentityKey(r Record) (string, bool) {
	raw, present := r[d.IdentityField()]
	if !present {
		return "", false
	}
	key := NormalizeTerm(raw)
	if key == "" {
		return "", false
	}
	if d.FoldIdentity {
		key = FoldKey(key)
	}
	return key, true
}

// FieldNames returns the schema field names in declaration order.
func (d Definition) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether name is part of the schema (case-insensitive).
func (d Definition) HasField(name string) bool {
	for _, f := range d.Fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Conform returns a copy of the record restricted to schema fields, with
// values whitespace-trimmed and empty values dropped. Unknown fields are
// discarded rather than rejected; extraction output routinely carries extras.
func (d Definition) Conform(r Record) Record {
	out := make(Record, len(d.Fields))
	for _, f := range d.Fields {
		if v, ok := r[f.Name]; ok {
			if v = strings.TrimSpace(v); v != "" {
				out[f.Name] = v
			}
		}
	}
	return out
}
