package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookline/stagezero/pkg/lifecycle"
	"github.com/hookline/stagezero/pkg/shutdown"
	"github.com/hookline/stagezero/pkg/supervisor"
)

// launchCmd represents the launch command
var launchCmd = &cobra.Command{
	Use:   "launch [-- service args...]",
	Short: "Run the launch sequence and hand off to the service",
	Long: `Run the full lifecycle sequence: establish the working directory,
install trust material, build the service binary and replace the
supervisor's process image with it. On success this command never
returns; on failure the process exits with the failed stage's own
exit code. Arguments after -- are appended to the service's argv.`,
	Args: cobra.ArbitraryArgs,
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Service.Args = append(cfg.Service.Args, args...)
	}

	s, err := supervisor.New(supervisor.Options{Config: cfg})
	if err != nil {
		return err
	}

	ctx, received, stop := shutdown.Signals(context.Background())
	defer stop()

	if err := s.Run(ctx); err != nil {
		// A runtime-delivered signal owns the exit code, 128+N.
		if sig, ok := received(); ok {
			return &supervisor.ExitError{
				Code:  lifecycle.SignalExitCode(sig),
				Stage: "signal",
				Err:   fmt.Errorf("terminated by %s before handoff", lifecycle.SignalName(sig)),
			}
		}
		return err
	}
	return nil
}
