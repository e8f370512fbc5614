package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transition records a single phase change with its timestamp and reason
type Transition struct {
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Snapshot is a point-in-time view of a launch, safe to serve concurrently
// while the pipeline advances.
type Snapshot struct {
	RunID       string       `json:"run_id"`
	Phase       Phase        `json:"phase"`
	StartedAt   time.Time    `json:"started_at"`
	Transitions []Transition `json:"transitions"`
}

// Tracker owns the lifecycle state of one launch. All phase changes go
// through Advance so invalid transitions are rejected before any side
// effect depends on them.
type Tracker struct {
	mu          sync.RWMutex
	runID       string
	phase       Phase
	startedAt   time.Time
	transitions []Transition
}

// NewTracker creates a tracker in the init phase with a fresh run ID.
func NewTracker() *Tracker {
	return &Tracker{
		runID:     uuid.New().String(),
		phase:     PhaseInit,
		startedAt: time.Now(),
	}
}

// RunID returns the launch identifier.
func (t *Tracker) RunID() string {
	return t.runID
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// Advance performs a validated transition to the target phase.
func (t *Tracker) Advance(to Phase, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ValidateTransition(t.phase, to); err != nil {
		return err
	}

	t.transitions = append(t.transitions, Transition{
		From:      t.phase,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	t.phase = to
	return nil
}

// Fail transitions to the failed phase from any non-terminal phase.
func (t *Tracker) Fail(reason string) error {
	return t.Advance(PhaseFailed, reason)
}

// Snapshot returns a copy of the current launch state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{
		RunID:       t.runID,
		Phase:       t.phase,
		StartedAt:   t.startedAt,
		Transitions: append([]Transition(nil), t.transitions...),
	}
}
