// Package sysexec is the command invocation surface shared by the
// provisioning steps. Steps declare argv-style commands; the OS runner
// executes them with a fixed working directory and passes the container's
// stdout/stderr straight through, so a failing stage's diagnostics reach
// the orchestrator unmodified.
package sysexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is a single external invocation.
type Command struct {
	// Argv is the program followed by its arguments. Never interpreted by
	// a shell; gating between commands is done by the pipeline, not by `&&`.
	Argv []string
	// Dir is the working directory. Empty means the process's own.
	Dir string
	// Env replaces the inherited environment when non-nil.
	Env []string
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// Runner executes commands on behalf of a step.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// OSRunner runs commands via os/exec.
type OSRunner struct {
	// Stdout and Stderr default to the process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Run blocks until the command completes. A non-zero exit surfaces as the
// *exec.ExitError from Wait, so ExitCode can recover the exact status.
func (r *OSRunner) Run(ctx context.Context, c Command) error {
	if len(c.Argv) == 0 {
		return fmt.Errorf("sysexec: empty argv")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}

	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sysexec: %s: %w", c, err)
	}
	return nil
}

// ExitCode extracts the process exit status from an error returned by a
// Runner. Anything that carries no status (start failures, cancellation)
// maps to 1 so the overall exit stays non-zero without inventing a code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		if code := coded.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
