// Package source imports upstream reference catalogs on demand or on a
// schedule. Each source fetches one kind, classifies every fetched record
// against the current corpus, and upserts by identity key, so repeated runs
// are idempotent.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/reliantlabs/medcat/internal/store"
)

// DefaultFetchLimit caps how many upstream records one run pulls.
var DefaultFetchLimit = 500

// Source yields upstream records for one kind.
type Source interface {
	Name() string
	Kind() catalog.Kind
	Fetch(ctx context.Context, limit int) ([]catalog.Record, error)
}

// Store is the persistence slice a run needs.
type Store interface {
	List(ctx context.Context, kind catalog.Kind) ([]catalog.Record, error)
	Create(ctx context.Context, kind catalog.Kind, rec catalog.Record) error
	Update(ctx context.Context, kind catalog.Kind, key string, rec catalog.Record) error
	SetState(ctx context.Context, key, value string) error
}

// Stats summarizes one source run. The blob is persisted under the
// stats:<name> state key after every successful run.
type Stats struct {
	Source     string       `json:"source"`
	Kind       catalog.Kind `json:"kind"`
	Fetched    int          `json:"fetched"`
	Imported   int          `json:"imported"`
	Updated    int          `json:"updated"`
	Skipped    int          `json:"skipped"`
	Errors     int          `json:"errors"`
	RanAt      time.Time    `json:"ran_at"`
	DurationMs int64        `json:"duration_ms"`
}

// Runner executes sources against a store.
type Runner struct {
	store   Store
	sources map[string]Source
	limit   int
}

// NewRunner builds a runner over the given sources. limit caps each run's
// fetch; zero takes the default.
func NewRunner(st Store, limit int, sources ...Source) *Runner {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	r := &Runner{
		store:   st,
		sources: make(map[string]Source, len(sources)),
		limit:   limit,
	}
	for _, src := range sources {
		r.sources[src.Name()] = src
	}
	return r
}

// Has reports whether a source is registered under name.
func (r *Runner) Has(name string) bool {
	_, ok := r.sources[name]
	return ok
}

// Names returns the registered source names in sorted order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one source to completion: fetch, classify against the
// corpus, upsert, persist stats.
//
// Existing records are enriched, not clobbered: an upstream value only
// lands in a field the stored record leaves empty. A record whose every
// upstream value is already present counts as skipped.
func (r *Runner) Run(ctx context.Context, name string) (Stats, error) {
	src, ok := r.sources[name]
	if !ok {
		return Stats{}, fmt.Errorf("unknown source %q", name)
	}
	def, ok := catalog.Get(src.Kind())
	if !ok {
		return Stats{}, fmt.Errorf("source %q targets unknown kind %q", name, src.Kind())
	}

	log := slog.With("source", name, "kind", src.Kind())
	log.Info("source import started", "limit", r.limit)
	start := time.Now()

	fetched, err := src.Fetch(ctx, r.limit)
	if err != nil {
		log.Error("source fetch failed", "error", err)
		return Stats{}, fmt.Errorf("fetch %s: %w", name, err)
	}

	existing, err := r.store.List(ctx, src.Kind())
	if err != nil {
		log.Error("corpus list failed", "error", err)
		return Stats{}, fmt.Errorf("list %s: %w", src.Kind(), err)
	}
	index := make(map[string]catalog.Record, len(existing))
	for _, rec := range existing {
		if key, ok := def.IdentityKey(rec); ok {
			index[key] = rec
		}
	}

	stats := Stats{Source: name, Kind: src.Kind(), Fetched: len(fetched), RanAt: start}
	for _, rec := range fetched {
		rec = def.Conform(rec)
		key, ok := def.IdentityKey(rec)
		if !ok {
			stats.Errors++
			continue
		}

		stored, exists := index[key]
		if !exists {
			if err := r.store.Create(ctx, src.Kind(), rec); err != nil {
				log.Warn("record create failed", "key", key, "error", err)
				stats.Errors++
				continue
			}
			index[key] = rec
			stats.Imported++
			continue
		}

		merged, changed := mergeRecord(def, stored, rec)
		if !changed {
			stats.Skipped++
			continue
		}
		if err := r.store.Update(ctx, src.Kind(), key, merged); err != nil {
			log.Warn("record update failed", "key", key, "error", err)
			stats.Errors++
			continue
		}
		index[key] = merged
		stats.Updated++
	}
	stats.DurationMs = time.Since(start).Milliseconds()

	if err := r.writeStats(ctx, stats); err != nil {
		log.Warn("stats write failed", "error", err)
	}

	log.Info("source import complete",
		"fetched", stats.Fetched,
		"imported", stats.Imported,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"duration_ms", stats.DurationMs,
	)
	return stats, nil
}

// RunAll executes every registered source, logging failures and carrying
// on; one broken upstream does not block the rest.
func (r *Runner) RunAll(ctx context.Context) []Stats {
	var all []Stats
	for _, name := range r.Names() {
		stats, err := r.Run(ctx, name)
		if err != nil {
			slog.Error("source run failed", "source", name, "error", err)
			continue
		}
		all = append(all, stats)
	}
	return all
}

func (r *Runner) writeStats(ctx context.Context, stats Stats) error {
	blob, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return r.store.SetState(ctx, store.StateKeyStats+stats.Source, string(blob))
}

// mergeRecord overlays upstream values onto the stored record, filling only
// fields the stored record leaves empty. Local data wins over upstream so a
// scheduled refresh can never undo a manual correction.
func mergeRecord(def catalog.Definition, stored, fetched catalog.Record) (catalog.Record, bool) {
	merged := stored.Clone()
	changed := false
	for _, f := range def.Fields {
		if merged[f.Name] == "" && fetched[f.Name] != "" {
			merged[f.Name] = fetched[f.Name]
			changed = true
		}
	}
	return merged, changed
}
