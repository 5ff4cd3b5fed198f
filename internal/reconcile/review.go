package reconcile

import (
	"sort"

	"github.com/reliantlabs/medcat/internal/catalog"
)

// Action is a reviewer's verdict on one candidate.
type Action string

const (
	// ActionInclude puts the candidate into the commit set as-is. On a
	// Duplicate or Invalid candidate this is a manual override.
	ActionInclude Action = "include"
	// ActionExclude keeps the candidate out of the commit set.
	ActionExclude Action = "exclude"
	// ActionEdit includes the candidate with field values substituted.
	ActionEdit Action = "edit"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionInclude, ActionExclude, ActionEdit:
		return true
	}
	return false
}

// Decision captures one reviewer verdict. Fields is consulted only for
// ActionEdit and holds field-name to new-value overrides.
type Decision struct {
	Action Action            `json:"action"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ApplyReview resolves a partition plus per-index decisions into the exact
// ordered record set to persist.
//
// Defaults when no decision is present: New candidates are included,
// Duplicate and Invalid candidates are excluded. Decisions override the
// default per candidate; reconciliation is not re-run, the reviewer's call is
// final. Edited records are copies with the override fields substituted; the
// partition itself is never mutated. Output order is input-sequence order
// across all three classes.
func ApplyReview(p Partition, decisions map[int]Decision) []catalog.Record {
	selected := make([]Candidate, 0, len(p.New))

	selected = appendSelected(selected, p.New, decisions, true)
	selected = appendSelected(selected, p.Duplicate, decisions, false)
	selected = appendSelected(selected, p.Invalid, decisions, false)

	sort.Slice(selected, func(i, j int) bool { return selected[i].Index < selected[j].Index })

	out := make([]catalog.Record, len(selected))
	for i, c := range selected {
		out[i] = c.Record
	}
	return out
}

func appendSelected(dst []Candidate, class []Candidate, decisions map[int]Decision, includeByDefault bool) []Candidate {
	for _, c := range class {
		d, decided := decisions[c.Index]
		if !decided {
			if includeByDefault {
				dst = append(dst, c)
			}
			continue
		}

		switch d.Action {
		case ActionInclude:
			dst = append(dst, c)
		case ActionEdit:
			dst = append(dst, Candidate{Index: c.Index, Record: editRecord(c.Record, d.Fields)})
		case ActionExclude:
			// dropped
		}
	}
	return dst
}

func editRecord(rec catalog.Record, overrides map[string]string) catalog.Record {
	edited := rec.Clone()
	for field, value := range overrides {
		edited[field] = value
	}
	return edited
}
