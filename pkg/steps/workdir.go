package steps

import (
	"context"
	"fmt"
	"os"

	"github.com/hookline/stagezero/pkg/environ"
	"github.com/hookline/stagezero/pkg/lifecycle"
)

// Workdir establishes the fixed working context for every later step and
// for the exec'd service itself.
type Workdir struct {
	// ChangeDir also moves the supervisor process into the directory, so
	// the service binary inherits it across the exec boundary.
	ChangeDir bool
}

func (Workdir) Name() string { return "workdir" }

func (Workdir) Phase() lifecycle.Phase { return lifecycle.PhaseEnvReady }

func (s Workdir) Run(_ context.Context, env environ.Environment) (environ.Environment, error) {
	if err := env.Validate(); err != nil {
		return env, &StageError{Stage: s.Name(), Code: 1, Err: err}
	}

	if err := os.MkdirAll(env.WorkDir, 0o755); err != nil {
		return env, &StageError{Stage: s.Name(), Code: 1,
			Err: fmt.Errorf("create working directory: %w", err)}
	}
	if s.ChangeDir {
		if err := os.Chdir(env.WorkDir); err != nil {
			return env, &StageError{Stage: s.Name(), Code: 1,
				Err: fmt.Errorf("enter working directory: %w", err)}
		}
	}
	return env.Clone(), nil
}
