package imports

import "testing"

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseUploading, true},
		{PhaseUploading, PhaseAnalyzing, true},
		{PhaseUploading, PhaseError, true},
		{PhaseAnalyzing, PhaseReviewing, true},
		{PhaseAnalyzing, PhaseError, true},
		{PhaseReviewing, PhaseSaving, true},
		{PhaseSaving, PhaseDone, true},
		{PhaseSaving, PhaseError, true},

		// No skipping ahead, no moving backwards.
		{PhaseIdle, PhaseReviewing, false},
		{PhaseUploading, PhaseSaving, false},
		{PhaseAnalyzing, PhaseDone, false},
		{PhaseReviewing, PhaseError, false},
		{PhaseReviewing, PhaseDone, false},
		{PhaseDone, PhaseUploading, false},
		{PhaseError, PhaseSaving, false},

		// Reset to idle is legal from anywhere.
		{PhaseUploading, PhaseIdle, true},
		{PhaseReviewing, PhaseIdle, true},
		{PhaseSaving, PhaseIdle, true},
		{PhaseDone, PhaseIdle, true},
		{PhaseError, PhaseIdle, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPhaseBusy(t *testing.T) {
	busy := map[Phase]bool{
		PhaseIdle:      false,
		PhaseUploading: true,
		PhaseAnalyzing: true,
		PhaseReviewing: false,
		PhaseSaving:    true,
		PhaseDone:      false,
		PhaseError:     false,
	}
	for phase, want := range busy {
		if got := phase.Busy(); got != want {
			t.Errorf("%s.Busy() = %v, want %v", phase, got, want)
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, phase := range []Phase{PhaseIdle, PhaseUploading, PhaseAnalyzing, PhaseReviewing, PhaseSaving} {
		if phase.Terminal() {
			t.Errorf("%s.Terminal() = true", phase)
		}
	}
	for _, phase := range []Phase{PhaseDone, PhaseError} {
		if !phase.Terminal() {
			t.Errorf("%s.Terminal() = false", phase)
		}
	}
}
