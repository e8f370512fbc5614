// Package handoff performs the terminal lifecycle action: replacing the
// supervisor's process image with the built service binary. The PID is
// preserved, so the container runtime's signal channel now reaches the
// service directly with no intermediate shell or supervisor.
package handoff

import (
	"fmt"
	"os"
	"syscall"

	"github.com/hookline/stagezero/pkg/environ"
	"github.com/hookline/stagezero/pkg/lifecycle"
)

// Execer abstracts process replacement so tests can observe the handoff
// without losing their own process image.
type Execer interface {
	// Exec substitutes the current process image. On success it does not
	// return; any return value is a failure.
	Exec(argv0 string, argv []string, env []string) error
}

// OSExecer is the real thing.
type OSExecer struct{}

func (OSExecer) Exec(argv0 string, argv []string, env []string) error {
	return syscall.Exec(argv0, argv, env)
}

// Error reports a failed handoff with the conventional shell exit code
// (127 missing, 126 not executable).
type Error struct {
	Path string
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handoff to %s failed (exit %d): %v", e.Path, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode lets callers recover the status the same way they do for stage
// command failures.
func (e *Error) ExitCode() int { return e.Code }

// Verify checks the invariant handoff depends on: the artifact exists at
// the deterministic path and is an executable regular file. A build that
// reported success without producing it is caught here, never exec'd.
func Verify(env environ.Environment) error {
	path := env.ArtifactAbs()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Error{Path: path, Code: lifecycle.ExitCodeNotFound,
				Err: fmt.Errorf("artifact missing: %w", err)}
		}
		return &Error{Path: path, Code: lifecycle.ExitCodeNotExecutable, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &Error{Path: path, Code: lifecycle.ExitCodeNotExecutable,
			Err: fmt.Errorf("artifact is not a regular file")}
	}
	if info.Mode()&0o111 == 0 {
		return &Error{Path: path, Code: lifecycle.ExitCodeNotExecutable,
			Err: fmt.Errorf("artifact is not executable")}
	}
	return nil
}

// Perform verifies the artifact and replaces the process image. With the
// OS execer this call does not return on success; no cleanup code may be
// scheduled after it.
func Perform(env environ.Environment, execer Execer) error {
	if err := Verify(env); err != nil {
		return err
	}

	path := env.ArtifactAbs()
	argv := append([]string{path}, env.Service.Args...)
	processEnv := append(os.Environ(), env.Service.Env...)

	if err := execer.Exec(path, argv, processEnv); err != nil {
		code := lifecycle.ExitCodeNotExecutable
		if os.IsNotExist(err) {
			code = lifecycle.ExitCodeNotFound
		}
		return &Error{Path: path, Code: code, Err: err}
	}
	return nil
}
