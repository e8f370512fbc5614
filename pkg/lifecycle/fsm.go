package lifecycle

import "fmt"

// Phase represents the supervisor's lifecycle phase
type Phase string

const (
	PhaseInit           Phase = "init"            // Sequence started, nothing provisioned yet
	PhaseEnvReady       Phase = "env_ready"       // Working context established
	PhaseTrustInstalled Phase = "trust_installed" // CA certificate bundle installed
	PhaseBuilt          Phase = "built"           // Service binary built and verified
	PhaseRunning        Phase = "running"         // Process image replaced by the service
	PhaseFailed         Phase = "failed"          // A stage failed; sequence aborted
)

// validTransitions maps from-phase to allowed to-phases. The pipeline is
// strictly sequential: every non-terminal phase may only advance to its
// successor or to failed.
var validTransitions = map[Phase]map[Phase]bool{
	PhaseInit: {
		PhaseEnvReady: true,
		PhaseFailed:   true,
	},
	PhaseEnvReady: {
		PhaseTrustInstalled: true,
		PhaseFailed:         true,
	},
	PhaseTrustInstalled: {
		PhaseBuilt:  true,
		PhaseFailed: true,
	},
	PhaseBuilt: {
		PhaseRunning: true,
		PhaseFailed:  true,
	},
	// Terminal phases (no transitions allowed)
	PhaseRunning: {},
	PhaseFailed:  {},
}

// ValidateTransition checks if a phase transition is valid
func ValidateTransition(from, to Phase) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source phase: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalPhase returns true if the phase is terminal (no further transitions)
func IsTerminalPhase(p Phase) bool {
	return p == PhaseRunning || p == PhaseFailed
}

// NextPhase returns the successor on the success path. Running and failed
// have no successor.
func NextPhase(p Phase) (Phase, bool) {
	switch p {
	case PhaseInit:
		return PhaseEnvReady, true
	case PhaseEnvReady:
		return PhaseTrustInstalled, true
	case PhaseTrustInstalled:
		return PhaseBuilt, true
	case PhaseBuilt:
		return PhaseRunning, true
	default:
		return "", false
	}
}
