package lifecycle

import (
	"syscall"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Phase
		to      Phase
		wantErr bool
	}{
		// Valid transitions (the sequential success path plus failure edges)
		{"Init to EnvReady", PhaseInit, PhaseEnvReady, false},
		{"Init to Failed", PhaseInit, PhaseFailed, false},
		{"EnvReady to TrustInstalled", PhaseEnvReady, PhaseTrustInstalled, false},
		{"EnvReady to Failed", PhaseEnvReady, PhaseFailed, false},
		{"TrustInstalled to Built", PhaseTrustInstalled, PhaseBuilt, false},
		{"TrustInstalled to Failed", PhaseTrustInstalled, PhaseFailed, false},
		{"Built to Running", PhaseBuilt, PhaseRunning, false},
		{"Built to Failed", PhaseBuilt, PhaseFailed, false},

		// Stage skipping is never allowed
		{"Init to TrustInstalled", PhaseInit, PhaseTrustInstalled, true},
		{"Init to Built", PhaseInit, PhaseBuilt, true},
		{"Init to Running", PhaseInit, PhaseRunning, true},
		{"EnvReady to Built", PhaseEnvReady, PhaseBuilt, true},
		{"TrustInstalled to Running", PhaseTrustInstalled, PhaseRunning, true},

		// Terminal phases admit nothing
		{"Running to Failed", PhaseRunning, PhaseFailed, true},
		{"Running to Init", PhaseRunning, PhaseInit, true},
		{"Failed to Init", PhaseFailed, PhaseInit, true},
		{"Failed to Running", PhaseFailed, PhaseRunning, true},

		// Unknown source
		{"Unknown phase", Phase("bogus"), PhaseFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminalPhase(t *testing.T) {
	tests := []struct {
		name     string
		phase    Phase
		expected bool
	}{
		{"Running is terminal", PhaseRunning, true},
		{"Failed is terminal", PhaseFailed, true},
		{"Init is not terminal", PhaseInit, false},
		{"EnvReady is not terminal", PhaseEnvReady, false},
		{"TrustInstalled is not terminal", PhaseTrustInstalled, false},
		{"Built is not terminal", PhaseBuilt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsTerminalPhase(tt.phase)
			if result != tt.expected {
				t.Errorf("IsTerminalPhase(%v) = %v, want %v", tt.phase, result, tt.expected)
			}
		})
	}
}

func TestNextPhase(t *testing.T) {
	tests := []struct {
		name   string
		phase  Phase
		next   Phase
		hasOne bool
	}{
		{"Init advances to EnvReady", PhaseInit, PhaseEnvReady, true},
		{"EnvReady advances to TrustInstalled", PhaseEnvReady, PhaseTrustInstalled, true},
		{"TrustInstalled advances to Built", PhaseTrustInstalled, PhaseBuilt, true},
		{"Built advances to Running", PhaseBuilt, PhaseRunning, true},
		{"Running has no successor", PhaseRunning, "", false},
		{"Failed has no successor", PhaseFailed, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := NextPhase(tt.phase)
			if ok != tt.hasOne || next != tt.next {
				t.Errorf("NextPhase(%v) = (%v, %v), want (%v, %v)",
					tt.phase, next, ok, tt.next, tt.hasOne)
			}
		})
	}
}

func TestTrackerAdvance(t *testing.T) {
	tr := NewTracker()

	if tr.RunID() == "" {
		t.Fatal("expected a non-empty run ID")
	}
	if tr.Phase() != PhaseInit {
		t.Fatalf("new tracker phase = %v, want %v", tr.Phase(), PhaseInit)
	}

	for _, p := range []Phase{PhaseEnvReady, PhaseTrustInstalled, PhaseBuilt, PhaseRunning} {
		if err := tr.Advance(p, "test"); err != nil {
			t.Fatalf("Advance(%v) unexpected error: %v", p, err)
		}
	}

	if err := tr.Fail("after terminal"); err == nil {
		t.Error("expected error advancing out of a terminal phase")
	}

	snap := tr.Snapshot()
	if snap.Phase != PhaseRunning {
		t.Errorf("snapshot phase = %v, want %v", snap.Phase, PhaseRunning)
	}
	if len(snap.Transitions) != 4 {
		t.Errorf("transition count = %d, want 4", len(snap.Transitions))
	}
	if snap.Transitions[0].From != PhaseInit || snap.Transitions[3].To != PhaseRunning {
		t.Errorf("unexpected transition record: %+v", snap.Transitions)
	}
}

func TestTrackerFailFromAnyNonTerminal(t *testing.T) {
	tests := []struct {
		name     string
		advances []Phase
	}{
		{"fail from init", nil},
		{"fail from env_ready", []Phase{PhaseEnvReady}},
		{"fail from trust_installed", []Phase{PhaseEnvReady, PhaseTrustInstalled}},
		{"fail from built", []Phase{PhaseEnvReady, PhaseTrustInstalled, PhaseBuilt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			for _, p := range tt.advances {
				if err := tr.Advance(p, "test"); err != nil {
					t.Fatalf("Advance(%v) unexpected error: %v", p, err)
				}
			}
			if err := tr.Fail("boom"); err != nil {
				t.Fatalf("Fail() unexpected error: %v", err)
			}
			if tr.Phase() != PhaseFailed {
				t.Errorf("phase = %v, want %v", tr.Phase(), PhaseFailed)
			}
		})
	}
}

func TestSignalExitCode(t *testing.T) {
	if got := SignalExitCode(syscall.SIGTERM); got != 143 {
		t.Errorf("SignalExitCode(SIGTERM) = %d, want 143", got)
	}
	if got := SignalExitCode(syscall.SIGINT); got != 130 {
		t.Errorf("SignalExitCode(SIGINT) = %d, want 130", got)
	}
}
