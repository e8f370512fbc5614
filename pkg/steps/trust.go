package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/hookline/stagezero/pkg/environ"
	"github.com/hookline/stagezero/pkg/lifecycle"
	"github.com/hookline/stagezero/pkg/sysexec"
)

// Trust refreshes the package index and installs the CA certificate bundle.
// Both invocations must exit zero; a network or index failure aborts the
// whole launch with that invocation's exit status. No retry is attempted.
type Trust struct {
	Runner         sysexec.Runner
	RefreshCommand []string
	InstallCommand []string
	Packages       []string
}

func (Trust) Name() string { return "trust" }

func (Trust) Phase() lifecycle.Phase { return lifecycle.PhaseTrustInstalled }

func (s Trust) Run(ctx context.Context, env environ.Environment) (environ.Environment, error) {
	out := env.Clone()

	refresh := sysexec.Command{Argv: s.RefreshCommand, Dir: env.WorkDir}
	if err := s.Runner.Run(ctx, refresh); err != nil {
		return env, &StageError{Stage: s.Name(), Code: sysexec.ExitCode(err),
			Err: fmt.Errorf("package index refresh: %w", err)}
	}
	out.IndexRefreshedAt = time.Now()

	install := sysexec.Command{
		Argv: append(append([]string(nil), s.InstallCommand...), s.Packages...),
		Dir:  env.WorkDir,
	}
	if err := s.Runner.Run(ctx, install); err != nil {
		return env, &StageError{Stage: s.Name(), Code: sysexec.ExitCode(err),
			Err: fmt.Errorf("install %v: %w", s.Packages, err)}
	}
	out.TrustInstalled = true

	return out, nil
}
