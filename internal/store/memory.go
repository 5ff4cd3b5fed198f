package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/reliantlabs/medcat/internal/catalog"
)

// Memory is an in-process store with the same semantics as Postgres,
// including identity-key uniqueness and all-or-nothing bulk writes. It backs
// tests and running without a database.
type Memory struct {
	mu    sync.RWMutex
	rows  map[catalog.Kind][]memRow
	state map[string]string
	seq   int64
}

type memRow struct {
	record   catalog.Record
	key      string
	hasKey   bool
	importID string
	seq      int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows:  make(map[catalog.Kind][]memRow),
		state: make(map[string]string),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// EnsureSchema is a no-op; kinds need no preparation here.
func (m *Memory) EnsureSchema(context.Context) error { return nil }

// List returns the full corpus for a kind.
func (m *Memory) List(_ context.Context, kind catalog.Kind) ([]catalog.Record, error) {
	if _, err := definitionFor(kind); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.rows[kind]
	out := make([]catalog.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record.Clone())
	}
	return out, nil
}

// Count returns the number of stored records for a kind.
func (m *Memory) Count(_ context.Context, kind catalog.Kind) (int64, error) {
	if _, err := definitionFor(kind); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows[kind])), nil
}

// Search returns one page of records whose identity or name fields contain
// the query text, case-insensitively. An empty query pages over everything.
func (m *Memory) Search(_ context.Context, kind catalog.Kind, query string, limit, offset int) (Page, error) {
	def, err := definitionFor(kind)
	if err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(query)
	fields := searchFields(def)

	matched := make([]memRow, 0, len(m.rows[kind]))
	for _, row := range m.rows[kind] {
		if needle == "" || rowMatches(row, fields, needle) {
			matched = append(matched, row)
		}
	}

	// Keyed rows first in key order, then keyless in insertion order, the
	// same shape the SQL ORDER BY produces.
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case a.hasKey && b.hasKey:
			if a.key != b.key {
				return a.key < b.key
			}
			return a.seq < b.seq
		case a.hasKey:
			return true
		case b.hasKey:
			return false
		default:
			return a.seq < b.seq
		}
	})

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	records := make([]catalog.Record, 0, end-offset)
	for _, row := range matched[offset:end] {
		records = append(records, row.record.Clone())
	}
	return Page{Records: records, Total: total, Limit: limit, Offset: offset}, nil
}

// GetByKey fetches the record with the given identity key.
func (m *Memory) GetByKey(_ context.Context, kind catalog.Kind, key string) (catalog.Record, bool, error) {
	if _, err := definitionFor(kind); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows[kind] {
		if row.hasKey && row.key == key {
			return row.record.Clone(), true, nil
		}
	}
	return nil, false, nil
}

// Create persists a single record.
func (m *Memory) Create(_ context.Context, kind catalog.Kind, rec catalog.Record) error {
	def, err := definitionFor(kind)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.buildRow(def, rec, "")
	if row.hasKey && m.keyExists(kind, row.key, -1) {
		return fmt.Errorf("create %s: %w: %s", kind, ErrDuplicateKey, row.key)
	}
	m.rows[kind] = append(m.rows[kind], row)
	return nil
}

// BulkCreate persists all records or none of them. The whole batch is
// validated against existing keys and against itself before anything lands.
func (m *Memory) BulkCreate(_ context.Context, kind catalog.Kind, records []catalog.Record, importID string) error {
	if len(records) == 0 {
		return nil
	}
	def, err := definitionFor(kind)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]memRow, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		row := m.buildRow(def, rec, importID)
		if row.hasKey {
			if _, dup := seen[row.key]; dup {
				return fmt.Errorf("bulk create %s: %w: %s", kind, ErrDuplicateKey, row.key)
			}
			if m.keyExists(kind, row.key, -1) {
				return fmt.Errorf("bulk create %s: %w: %s", kind, ErrDuplicateKey, row.key)
			}
			seen[row.key] = struct{}{}
		}
		pending = append(pending, row)
	}

	m.rows[kind] = append(m.rows[kind], pending...)
	return nil
}

// Update replaces the field values of the record with the given identity key.
func (m *Memory) Update(_ context.Context, kind catalog.Kind, key string, rec catalog.Record) error {
	def, err := definitionFor(kind)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, row := range m.rows[kind] {
		if row.hasKey && row.key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("update %s: no record with key %q", kind, key)
	}

	newKey, hasKey := identityValue(def, rec)
	if hasKey && newKey != key && m.keyExists(kind, newKey, idx) {
		return fmt.Errorf("update %s: %w: %s", kind, ErrDuplicateKey, newKey)
	}

	row := m.rows[kind][idx]
	row.record = storedRecord(def, rec)
	row.key = newKey
	row.hasKey = hasKey
	m.rows[kind][idx] = row
	return nil
}

// DeleteImport removes every record created by one import session and
// returns how many went away.
func (m *Memory) DeleteImport(_ context.Context, kind catalog.Kind, importID string) (int64, error) {
	if _, err := definitionFor(kind); err != nil {
		return 0, err
	}
	if importID == "" {
		return 0, fmt.Errorf("empty import id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[kind][:0]
	var removed int64
	for _, row := range m.rows[kind] {
		if row.importID == importID {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows[kind] = kept
	return removed, nil
}

// GetState reads one import-state value; missing keys return "".
func (m *Memory) GetState(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state[key], nil
}

// SetState writes one import-state value.
func (m *Memory) SetState(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = value
	return nil
}

// States returns every import-state entry whose key starts with prefix.
func (m *Memory) States(_ context.Context, prefix string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	for k, v := range m.state {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

// buildRow prepares a row for insertion. Caller holds the write lock.
func (m *Memory) buildRow(def catalog.Definition, rec catalog.Record, importID string) memRow {
	m.seq++
	row := memRow{
		record:   storedRecord(def, rec),
		importID: importID,
		seq:      m.seq,
	}
	row.key, row.hasKey = identityValue(def, rec)
	return row
}

// keyExists reports whether another row of the kind already holds the key.
// skip names a row index to ignore, or -1.
func (m *Memory) keyExists(kind catalog.Kind, key string, skip int) bool {
	for i, row := range m.rows[kind] {
		if i == skip {
			continue
		}
		if row.hasKey && row.key == key {
			return true
		}
	}
	return false
}

// storedRecord keeps only schema fields with non-empty values, matching what
// the SQL store would round-trip.
func storedRecord(def catalog.Definition, rec catalog.Record) catalog.Record {
	out := make(catalog.Record, len(rec))
	for _, f := range def.Fields {
		if v := rec[f.Name]; v != "" {
			out[f.Name] = v
		}
	}
	return out
}

func rowMatches(row memRow, fields []string, needle string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(row.record[f]), needle) {
			return true
		}
	}
	return false
}
