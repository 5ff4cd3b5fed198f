// Package store persists the reference catalogs and import bookkeeping.
//
// Postgres is the production implementation; Memory backs tests and no-DB
// operation. Both enforce identity-key uniqueness per kind, which is what
// turns a stale reconciliation snapshot into a failed commit instead of a
// silent duplicate row.
package store

import (
	"fmt"
	"strings"

	"github.com/reliantlabs/medcat/internal/catalog"
)

// ErrDuplicateKey is wrapped into errors returned when a write collides with
// an existing identity key.
var ErrDuplicateKey = fmt.Errorf("duplicate identity key")

// StateKeyStats prefixes the import-state keys holding per-source run stats.
const StateKeyStats = "stats:"

// Page is one slice of a search result.
type Page struct {
	Records []catalog.Record `json:"records"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// identityValue derives the stored identity key for a record, or ok=false
// for keyless records, which are stored with a NULL key and exempt from the
// uniqueness constraint.
func identityValue(def catalog.Definition, rec catalog.Record) (string, bool) {
	return def.IdentityKey(rec)
}

// searchFields returns the columns consulted by Search: the identity field
// plus every name-ish field of the schema.
func searchFields(def catalog.Definition) []string {
	identity := def.IdentityField()
	fields := []string{identity}
	for _, f := range def.Fields {
		if f.Name != identity && strings.Contains(f.Name, "name") {
			fields = append(fields, f.Name)
		}
	}
	return fields
}

// definitionFor resolves a kind or reports a usable error.
func definitionFor(kind catalog.Kind) (catalog.Definition, error) {
	def, ok := catalog.Get(kind)
	if !ok {
		return catalog.Definition{}, fmt.Errorf("unknown record kind %q", kind)
	}
	return def, nil
}
