// Package reconcile classifies candidate records against the persisted corpus
// before any write happens.
//
// Reconciliation is a pure, deterministic partition: every candidate lands in
// exactly one of three classes based on its identity key and a point-in-time
// snapshot of the corpus keys. Nothing is persisted and nothing is mutated;
// the partition feeds an interactive review step where a human decides what
// actually gets committed.
package reconcile

import (
	"fmt"

	"github.com/reliantlabs/medcat/internal/catalog"
)

// Candidate is one input record together with its position in the input
// sequence. The index is the stable handle review decisions refer to.
type Candidate struct {
	Index  int            `json:"index"`
	Record catalog.Record `json:"record"`
}

// Partition is the three-way classification of a candidate batch. The three
// slices are disjoint, cover every input record, and each preserves input
// order.
type Partition struct {
	// New: identity key derived and not present in the corpus snapshot.
	New []Candidate `json:"new"`
	// Duplicate: identity key derived and already present in the snapshot.
	Duplicate []Candidate `json:"duplicate"`
	// Invalid: no identity key derivable; never comparable to anything.
	Invalid []Candidate `json:"invalid"`

	// BatchDuplicates counts candidates whose identity key already appeared
	// earlier in the same batch. They still classify against the corpus only
	// (two fresh rows with one key are both New); the count lets the review
	// surface warn about in-file repeats.
	BatchDuplicates int `json:"batch_duplicates"`
}

// Total returns the number of candidates across all three classes.
func (p Partition) Total() int {
	return len(p.New) + len(p.Duplicate) + len(p.Invalid)
}

// KeySet is a point-in-time snapshot of the identity keys present in the
// persisted corpus. It is built once per import session and never re-queried
// while the session lives.
type KeySet map[string]struct{}

// Contains reports whether key is in the snapshot.
func (s KeySet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// BuildKeySet derives the identity key of every persisted record and collects
// the results. Persisted records with no derivable key are skipped, not
// counted; they can never collide with a candidate.
func BuildKeySet(def catalog.Definition, existing []catalog.Record) KeySet {
	set := make(KeySet, len(existing))
	for _, rec := range existing {
		if key, ok := def.IdentityKey(rec); ok {
			set[key] = struct{}{}
		}
	}
	return set
}

// Reconcile partitions candidates for a kind against the full current corpus.
// It returns an error only for an unregistered kind; an empty candidate slice
// yields an empty partition.
func Reconcile(candidates []catalog.Record, kind catalog.Kind, existing []catalog.Record) (Partition, error) {
	def, ok := catalog.Get(kind)
	if !ok {
		return Partition{}, fmt.Errorf("unknown record kind %q", kind)
	}
	return Against(def, candidates, BuildKeySet(def, existing)), nil
}

// Against partitions candidates against an already-built key snapshot.
// The function is pure: identical inputs always produce identical partitions,
// and neither the candidates nor the snapshot are modified.
func Against(def catalog.Definition, candidates []catalog.Record, existing KeySet) Partition {
	var p Partition
	seen := make(map[string]struct{}, len(candidates))

	for i, rec := range candidates {
		c := Candidate{Index: i, Record: rec}
		key, ok := def.IdentityKey(rec)

		switch {
		case !ok:
			p.Invalid = append(p.Invalid, c)
		case existing.Contains(key):
			p.Duplicate = append(p.Duplicate, c)
		default:
			p.New = append(p.New, c)
		}

		if ok {
			if _, repeat := seen[key]; repeat {
				p.BatchDuplicates++
			} else {
				seen[key] = struct{}{}
			}
		}
	}

	return p
}
