package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/hookline/stagezero/pkg/environ"
	"github.com/hookline/stagezero/pkg/lifecycle"
	"github.com/hookline/stagezero/pkg/sysexec"
)

// Build compiles the service binary with the fixed build invocation. A
// non-zero build exit short-circuits the launch; the stale-or-missing
// artifact check itself belongs to handoff, which never runs after a
// failed build.
type Build struct {
	Runner  sysexec.Runner
	Command []string
}

func (Build) Name() string { return "build" }

func (Build) Phase() lifecycle.Phase { return lifecycle.PhaseBuilt }

func (s Build) Run(ctx context.Context, env environ.Environment) (environ.Environment, error) {
	cmd := sysexec.Command{Argv: s.Command, Dir: env.WorkDir}
	if err := s.Runner.Run(ctx, cmd); err != nil {
		return env, &StageError{Stage: s.Name(), Code: sysexec.ExitCode(err),
			Err: fmt.Errorf("build %s: %w", env.Service.Name, err)}
	}

	out := env.Clone()
	out.BuiltAt = time.Now()
	return out, nil
}
