package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/reliantlabs/medcat/internal/logging"
	"github.com/reliantlabs/medcat/internal/store"
)

// maxPageSize caps how many records one search request may return.
const maxPageSize = 500

// FieldView describes one field of a record kind for API clients.
type FieldView struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required,omitempty"`
	Identity bool   `json:"identity,omitempty"`
}

// KindView describes one registered record kind for API clients.
type KindView struct {
	Kind          catalog.Kind `json:"kind"`
	Label         string       `json:"label"`
	IdentityField string       `json:"identity_field"`
	FoldIdentity  bool         `json:"fold_identity,omitempty"`
	Fields        []FieldView  `json:"fields"`
}

// handleListKinds returns every registered record kind with its field specs.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	defs := catalog.All()

	kinds := make([]KindView, 0, len(defs))
	for _, def := range defs {
		fields := make([]FieldView, 0, len(def.Fields))
		for _, f := range def.Fields {
			fields = append(fields, FieldView{
				Name:     f.Name,
				Label:    f.Label,
				Required: f.Required,
				Identity: f.Identity,
			})
		}
		kinds = append(kinds, KindView{
			Kind:          def.Key,
			Label:         def.Label,
			IdentityField: def.IdentityField(),
			FoldIdentity:  def.FoldIdentity,
			Fields:        fields,
		})
	}

	writeJSON(w, http.StatusOK, kinds)
}

// handleSearchRecords returns a page of stored records, optionally filtered
// by a case-insensitive search term.
func (s *Server) handleSearchRecords(w http.ResponseWriter, r *http.Request) {
	kind := catalog.Kind(chi.URLParam(r, "kind"))
	if _, ok := catalog.Get(kind); !ok {
		writeError(w, http.StatusBadRequest, "unknown record kind")
		return
	}

	query := r.URL.Query().Get("search")
	limit := parseIntParam(r, "limit", 50, 1)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := parseIntParam(r, "offset", 0, 0)

	page, err := s.store.Search(r.Context(), kind, query, limit, offset)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleCreateRecord stores a single record supplied as a JSON object of
// field values.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	kind := catalog.Kind(chi.URLParam(r, "kind"))
	def, ok := catalog.Get(kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown record kind")
		return
	}

	var rec catalog.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec = def.Conform(rec)
	for _, f := range def.Fields {
		if f.Required && rec[f.Name] == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing required field %q", f.Name))
			return
		}
	}

	if err := s.store.Create(r.Context(), kind, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			writeError(w, http.StatusConflict, "a record with the same identity already exists")
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.FromContext(r.Context()).Info("record created", "kind", kind)
	writeJSON(w, http.StatusCreated, rec)
}

// parseIntParam parses an integer query parameter with a default value.
// Values below minVal (and garbage) fall back to the default.
func parseIntParam(r *http.Request, name string, defaultVal, minVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < minVal {
		return defaultVal
	}
	return i
}
