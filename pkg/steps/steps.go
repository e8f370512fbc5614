// Package steps holds the ordered provisioning steps of a launch. Each step
// is an explicit, idempotent unit that takes the current execution
// environment value and returns an updated one, replacing the shell-level
// `&&` chain with typed results the pipeline can gate on.
package steps

import (
	"context"
	"fmt"

	"github.com/hookline/stagezero/pkg/environ"
	"github.com/hookline/stagezero/pkg/lifecycle"
)

// Step is one sequential unit of the launch pipeline.
type Step interface {
	// Name identifies the step in logs, metrics and errors.
	Name() string
	// Phase is the lifecycle phase reached when the step succeeds.
	Phase() lifecycle.Phase
	// Run performs the step. On failure the returned environment is
	// discarded and no later step runs.
	Run(ctx context.Context, env environ.Environment) (environ.Environment, error)
}

// StageError wraps a step failure with the exit status that must propagate
// as the overall container exit code. Codes are never remapped.
type StageError struct {
	Stage string
	Code  int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (exit %d): %v", e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode exposes the stage's exit status the same way *exec.ExitError
// does, so sysexec.ExitCode recovers it without special cases.
func (e *StageError) ExitCode() int {
	return e.Code
}
