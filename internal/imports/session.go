package imports

import (
	"context"
	"time"

	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/reliantlabs/medcat/internal/reconcile"
)

// session is the service's internal record of one import. All fields are
// guarded by the service mutex; the epoch increments on every reset so
// late-finishing background work can detect it is stale.
type session struct {
	id       string
	kind     catalog.Kind
	fileName string
	phase    Phase
	epoch    int

	fileURL   string
	partition reconcile.Partition
	decisions map[int]reconcile.Decision
	saved     int
	err       error

	cancel    context.CancelFunc
	createdAt time.Time
	updatedAt time.Time
}

// Summary counts the partition classes for status responses.
type Summary struct {
	New             int `json:"new"`
	Duplicate       int `json:"duplicate"`
	Invalid         int `json:"invalid"`
	BatchDuplicates int `json:"batch_duplicates"`
	Total           int `json:"total"`
}

// SessionView is the client-facing snapshot of a session. Partition and
// Decisions are populated while the session is reviewing; Error is set in
// the error phase; Saved is set once the session is done.
type SessionView struct {
	ID        string                     `json:"id"`
	Kind      catalog.Kind               `json:"kind"`
	FileName  string                     `json:"file_name"`
	Phase     Phase                      `json:"phase"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Summary   *Summary                   `json:"summary,omitempty"`
	Partition *reconcile.Partition       `json:"partition,omitempty"`
	Decisions map[int]reconcile.Decision `json:"decisions,omitempty"`
	Saved     int                        `json:"saved,omitempty"`
	Error     *UserMessage               `json:"error,omitempty"`
}

// view builds the client snapshot. Caller holds the service mutex. The
// partition is shared, not copied; consumers only serialize it.
func (s *session) view() SessionView {
	v := SessionView{
		ID:        s.id,
		Kind:      s.kind,
		FileName:  s.fileName,
		Phase:     s.phase,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}

	switch s.phase {
	case PhaseReviewing:
		p := s.partition
		v.Partition = &p
		v.Summary = summarize(p)
		v.Decisions = cloneDecisions(s.decisions)
	case PhaseSaving:
		v.Summary = summarize(s.partition)
	case PhaseDone:
		v.Summary = summarize(s.partition)
		v.Saved = s.saved
	case PhaseError:
		msg := MapError(s.err)
		v.Error = &msg
	}
	return v
}

// candidateAt finds the partition member with the given input index.
func (s *session) candidateAt(index int) (reconcile.Candidate, bool) {
	for _, class := range [][]reconcile.Candidate{s.partition.New, s.partition.Duplicate, s.partition.Invalid} {
		for _, c := range class {
			if c.Index == index {
				return c, true
			}
		}
	}
	return reconcile.Candidate{}, false
}

func summarize(p reconcile.Partition) *Summary {
	return &Summary{
		New:             len(p.New),
		Duplicate:       len(p.Duplicate),
		Invalid:         len(p.Invalid),
		BatchDuplicates: p.BatchDuplicates,
		Total:           p.Total(),
	}
}

func cloneDecisions(in map[int]reconcile.Decision) map[int]reconcile.Decision {
	if len(in) == 0 {
		return nil
	}
	out := make(map[int]reconcile.Decision, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
