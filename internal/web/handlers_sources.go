package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/reliantlabs/medcat/internal/imports"
	"github.com/reliantlabs/medcat/internal/logging"
	"github.com/reliantlabs/medcat/internal/source"
	"github.com/reliantlabs/medcat/internal/store"
)

// handleRunSource triggers one upstream source import and returns its run
// statistics. Scheduled runs use the same path through the runner, so a
// manual trigger behaves identically to a cron firing.
func (s *Server) handleRunSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.sources.Has(name) {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	stats, err := s.sources.Run(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ImportsMetrics summarizes the import service for the metrics endpoint.
type ImportsMetrics struct {
	Sessions int                `json:"sessions"`
	Gate     imports.GateStatus `json:"gate"`
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Records map[string]int64        `json:"records"`
	Sources map[string]source.Stats `json:"sources"`
	Imports ImportsMetrics          `json:"imports"`
}

// handleMetrics reports corpus sizes per kind, the last run statistics of
// every source, and the import service's gate occupancy.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	records := make(map[string]int64)
	for _, def := range catalog.All() {
		n, err := s.store.Count(ctx, def.Key)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		records[string(def.Key)] = n
	}

	blobs, err := s.store.States(ctx, store.StateKeyStats)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	sources := make(map[string]source.Stats, len(blobs))
	for key, raw := range blobs {
		var stats source.Stats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			logger.Warn("skipping unreadable source stats", "key", key, "error", err)
			continue
		}
		sources[strings.TrimPrefix(key, store.StateKeyStats)] = stats
	}

	writeJSON(w, http.StatusOK, MetricsResponse{
		Records: records,
		Sources: sources,
		Imports: ImportsMetrics{
			Sessions: s.imports.SessionCount(),
			Gate:     s.imports.GateStatus(),
		},
	})
}

// handleHealthz is the liveness probe. It fails only when the record store
// is unreachable.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
