package imports

// Phase is the lifecycle state of one import session.
//
// The machine moves strictly forward; the only way back is an explicit
// Reset, which returns the session to idle from any phase. A reset bumps
// the session epoch, so in-flight work that finishes afterwards finds its
// epoch stale and its result is discarded rather than applied.
type Phase string

const (
	// PhaseIdle is a reset session with no work attached.
	PhaseIdle Phase = "idle"
	// PhaseUploading covers file transfer to the upload store.
	PhaseUploading Phase = "uploading"
	// PhaseAnalyzing covers extraction plus reconciliation against the
	// corpus snapshot.
	PhaseAnalyzing Phase = "analyzing"
	// PhaseReviewing holds the partition open for reviewer decisions.
	PhaseReviewing Phase = "reviewing"
	// PhaseSaving covers the bulk write of the reviewed record set.
	PhaseSaving Phase = "saving"
	// PhaseDone means the reviewed records were persisted.
	PhaseDone Phase = "done"
	// PhaseError means one of the busy phases failed. The session keeps
	// the failure until reset.
	PhaseError Phase = "error"
)

// transitions lists the forward edges of the machine. Reset edges to idle
// exist from every phase and are not listed.
var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseUploading},
	PhaseUploading: {PhaseAnalyzing, PhaseError},
	PhaseAnalyzing: {PhaseReviewing, PhaseError},
	PhaseReviewing: {PhaseSaving},
	PhaseSaving:    {PhaseDone, PhaseError},
	PhaseDone:      {},
	PhaseError:     {},
}

// CanTransition reports whether the machine allows moving from p to next.
// Reset to idle is always allowed.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseIdle {
		return true
	}
	for _, t := range transitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// Busy reports whether the phase has background work attached.
func (p Phase) Busy() bool {
	switch p {
	case PhaseUploading, PhaseAnalyzing, PhaseSaving:
		return true
	}
	return false
}

// Terminal reports whether the phase ends the session's forward progress.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}
