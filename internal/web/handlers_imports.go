package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/reliantlabs/medcat/internal/extract"
	"github.com/reliantlabs/medcat/internal/logging"
	"github.com/reliantlabs/medcat/internal/reconcile"
)

// handleStartImport accepts a multipart file upload and starts an import
// session. The "kind" form field is optional; when omitted the kind is
// inferred from the file's header row.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	kind := catalog.Kind(r.FormValue("kind"))
	if kind == "" {
		inferred, ok := inferKind(data)
		if !ok {
			writeError(w, http.StatusBadRequest, "kind not given and could not be inferred from the file headers")
			return
		}
		kind = inferred
	}
	if _, ok := catalog.Get(kind); !ok {
		writeError(w, http.StatusBadRequest, "unknown record kind")
		return
	}

	id, err := s.imports.Start(r.Context(), kind, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	logging.WithFields(r.Context(),
		"session_id", id,
		"kind", kind,
		"filename", header.Filename,
	).Info("import started")
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

// inferKind guesses the record kind from the file's header row. Only
// formats whose headers can be peeked locally (CSV, JSON) are inferable;
// spreadsheet uploads must name their kind explicitly.
func inferKind(data []byte) (catalog.Kind, bool) {
	headers, ok := extract.PeekHeaders(data)
	if !ok {
		return "", false
	}
	return catalog.BestMatch(headers)
}

// handleImportStatus returns the current session snapshot.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.imports.Status(id)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, view)
}

type editRequest struct {
	Fields map[string]string `json:"fields"`
}

// handleEditImportRecord applies field edits to one candidate while the
// session is in review.
func (s *Server) handleEditImportRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "no fields provided")
		return
	}

	if err := s.imports.EditRecord(id, index, req.Fields); err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	view, err := s.imports.Status(id)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleImportDecision records an include/exclude/edit verdict for one
// candidate.
func (s *Server) handleImportDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	var decision reconcile.Decision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.imports.SetDecision(id, index, decision); err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	view, err := s.imports.Status(id)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCommitImport starts the save leg. The save runs in the background;
// clients poll the session snapshot for done or error.
func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.imports.Commit(r.Context(), id); err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	view, err := s.imports.Status(id)
	if err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleResetImport discards the session's pipeline state.
func (s *Server) handleResetImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.imports.Reset(id); err != nil {
		s.respondError(w, r, err, importErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "reset"})
}

// handleRollbackImport deletes every record a committed session created.
// The kind comes from the query string, falling back to the session when it
// is still tracked.
func (s *Server) handleRollbackImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	kind := catalog.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		if view, err := s.imports.Status(id); err == nil {
			kind = view.Kind
		}
	}
	if kind == "" {
		writeError(w, http.StatusBadRequest, "kind required when the session is no longer tracked")
		return
	}
	if _, ok := catalog.Get(kind); !ok {
		writeError(w, http.StatusBadRequest, "unknown record kind")
		return
	}

	deleted, err := s.store.DeleteImport(r.Context(), kind, id)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.FromContext(r.Context()).Info("import rolled back",
		"session_id", id,
		"kind", kind,
		"deleted", deleted,
	)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// parseIndex reads the candidate index URL parameter, writing a 400 on
// malformed input.
func parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid record index")
		return 0, false
	}
	return index, true
}
