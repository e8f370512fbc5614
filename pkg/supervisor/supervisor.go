// Package supervisor runs the launch sequence end to end: provision the
// environment, install trust material, build the service, then replace the
// supervisor's own process image with the built binary. Each stage gates
// the next; the first failure aborts the sequence and its exit status
// becomes the container's exit status unchanged.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hookline/stagezero/pkg/config"
	"github.com/hookline/stagezero/pkg/environ"
	"github.com/hookline/stagezero/pkg/handoff"
	"github.com/hookline/stagezero/pkg/journal"
	"github.com/hookline/stagezero/pkg/lifecycle"
	"github.com/hookline/stagezero/pkg/logging"
	"github.com/hookline/stagezero/pkg/metrics"
	"github.com/hookline/stagezero/pkg/shutdown"
	"github.com/hookline/stagezero/pkg/statusapi"
	"github.com/hookline/stagezero/pkg/steps"
	"github.com/hookline/stagezero/pkg/sysexec"
	"github.com/hookline/stagezero/pkg/tracing"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const drainTimeout = 10 * time.Second

// ExitError carries the exit status the supervisor process must terminate
// with. Stage exit codes pass through unchanged; handoff failures use the
// conventional 126/127.
type ExitError struct {
	Code  int
	Stage string
	Err   error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("launch failed at %s (exit %d): %v", e.Stage, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the status to pass to os.Exit.
func (e *ExitError) ExitCode() int { return e.Code }

// Options configures a supervisor. Zero-value fields get the real OS
// implementations; tests substitute recording fakes.
type Options struct {
	Config config.Config
	Logger *logging.Logger
	Runner sysexec.Runner
	Execer handoff.Execer

	// SkipChdir keeps the supervisor's own working directory untouched.
	// The real launch always chdirs so the exec'd binary inherits it.
	SkipChdir bool
}

// Supervisor owns one launch.
type Supervisor struct {
	cfg     config.Config
	log     *logging.Logger
	runner  sysexec.Runner
	execer  handoff.Execer
	chdir   bool
	tracker *lifecycle.Tracker
	rec     *metrics.Recorder
	drainer *shutdown.Drainer
	jrnl    *journal.Journal
}

// New builds a supervisor for the given launch manifest.
func New(opts Options) (*Supervisor, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.ParseLevel(opts.Config.LogLevel), opts.Config.LogJSON)
	}
	if opts.Runner == nil {
		opts.Runner = &sysexec.OSRunner{}
	}
	if opts.Execer == nil {
		opts.Execer = handoff.OSExecer{}
	}

	tracker := lifecycle.NewTracker()
	rec := metrics.NewRecorder()
	rec.SetLaunchInfo(tracker.RunID(), opts.Config.BaseImage, opts.Config.Service.Name)

	return &Supervisor{
		cfg:     opts.Config,
		log:     opts.Logger.WithField("run_id", tracker.RunID()),
		runner:  opts.Runner,
		execer:  opts.Execer,
		chdir:   !opts.SkipChdir,
		tracker: tracker,
		rec:     rec,
		drainer: shutdown.NewDrainer(drainTimeout),
	}, nil
}

// Tracker exposes the launch's lifecycle state.
func (s *Supervisor) Tracker() *lifecycle.Tracker { return s.tracker }

// Steps returns the ordered provisioning pipeline for the manifest. Handoff
// is not a step: it terminates the pipeline rather than advancing it.
func (s *Supervisor) Steps() []steps.Step {
	return []steps.Step{
		steps.Workdir{ChangeDir: s.chdir},
		steps.Trust{
			Runner:         s.runner,
			RefreshCommand: s.cfg.Trust.RefreshCommand,
			InstallCommand: s.cfg.Trust.InstallCommand,
			Packages:       s.cfg.Trust.Packages,
		},
		steps.Build{Runner: s.runner, Command: s.cfg.Build.Command},
	}
}

// Run executes the launch sequence. On success with the OS execer it never
// returns: the process image is the service's by then. Any non-nil return
// is a failure whose ExitCode the caller passes to os.Exit.
func (s *Supervisor) Run(ctx context.Context) error {
	env := s.cfg.Environment()
	s.log.Info("launch starting", map[string]interface{}{
		"service":    env.Service.Name,
		"base_image": env.BaseImage,
		"workdir":    env.WorkDir,
	})

	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "stagezero",
		ServiceVersion: Version,
		Environment:    s.cfg.Tracing.Environment,
		OTLPEndpoint:   s.cfg.Tracing.OTLPEndpoint,
		Enabled:        s.cfg.Tracing.Enabled,
	})
	if err != nil {
		return s.fail("init", 1, fmt.Errorf("initialize tracing: %w", err), lifecycle.ExitReasonStage)
	}
	s.drainer.Register("tracer", tracer.Shutdown)

	if s.cfg.Journal.Path != "" {
		j, err := journal.Open(s.cfg.Journal.Path)
		if err != nil {
			// A broken journal must not abort a launch.
			s.log.Warn("journal unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			s.jrnl = j
			s.drainer.Register("journal", func(context.Context) error { return j.Close() })
		}
	}

	if s.cfg.StatusAPI.Enabled {
		api := statusapi.New(s.cfg.StatusAPI.Listen, s.tracker, s.rec.Handler())
		if err := api.Start(); err != nil {
			s.log.Warn("status api unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			s.log.Info("status api listening", map[string]interface{}{"addr": api.Addr()})
			s.drainer.Register("status_api", api.Shutdown)
		}
	}

	for _, step := range s.Steps() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.fail(step.Name(), 1, fmt.Errorf("launch aborted: %w", ctxErr), lifecycle.ExitReasonSignal)
		}

		stepCtx, span := tracer.StartStage(ctx, step.Name(),
			attribute.String("run_id", s.tracker.RunID()),
			attribute.String("service", env.Service.Name),
		)

		s.log.Info("stage starting", map[string]interface{}{"stage": step.Name()})
		start := time.Now()
		next, err := step.Run(stepCtx, env)
		s.rec.ObserveStage(step.Name(), time.Since(start), err == nil)
		tracing.EndStage(span, err)

		if err != nil {
			return s.fail(step.Name(), sysexec.ExitCode(err), err, lifecycle.ExitReasonStage)
		}

		env = next
		if err := s.tracker.Advance(step.Phase(), "stage "+step.Name()+" complete"); err != nil {
			return s.fail(step.Name(), 1, err, lifecycle.ExitReasonStage)
		}
		s.log.Info("stage complete", map[string]interface{}{
			"stage":    step.Name(),
			"phase":    string(step.Phase()),
			"duration": time.Since(start).String(),
		})
	}

	return s.handoff(ctx, env)
}

// handoff verifies the artifact, records the terminal running phase,
// releases every ambient resource and replaces the process image. Ordering
// matters: after exec succeeds nothing of the supervisor is left to run.
func (s *Supervisor) handoff(ctx context.Context, env environ.Environment) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return s.fail("handoff", 1, fmt.Errorf("launch aborted: %w", ctxErr), lifecycle.ExitReasonSignal)
	}
	if err := handoff.Verify(env); err != nil {
		return s.fail("handoff", sysexec.ExitCode(err), err, lifecycle.ExitReasonHandoff)
	}

	artifact := env.ArtifactAbs()
	if err := s.tracker.Advance(lifecycle.PhaseRunning, "handing off to "+artifact); err != nil {
		return s.fail("handoff", 1, err, lifecycle.ExitReasonHandoff)
	}
	s.log.Info("handing off", map[string]interface{}{"artifact": artifact})

	s.record(env, 0, "", lifecycle.ExitReasonSuccess)
	s.flushTextfile()
	s.drain()

	if err := handoff.Perform(env, s.execer); err != nil {
		// The artifact vanished between verify and exec. Running is
		// terminal, so the exit code and the rewritten journal row
		// report it.
		code := sysexec.ExitCode(err)
		s.log.Error("process replacement failed", map[string]interface{}{"error": err.Error()})
		s.rerecord(env, code, err.Error())
		return &ExitError{Code: code, Stage: "handoff", Err: err}
	}
	return nil
}

// fail marks the launch failed, persists the outcome and returns the
// ExitError carrying the stage's own exit status.
func (s *Supervisor) fail(stage string, code int, err error, reason lifecycle.ExitReason) error {
	s.log.Error("stage failed", map[string]interface{}{
		"stage":     stage,
		"exit_code": code,
		"error":     err.Error(),
	})
	if trErr := s.tracker.Fail(err.Error()); trErr != nil {
		s.log.Warn("phase transition rejected", map[string]interface{}{"error": trErr.Error()})
	}

	s.record(s.cfg.Environment(), code, err.Error(), reason)
	s.flushTextfile()
	s.drain()

	return &ExitError{Code: code, Stage: stage, Err: err}
}

func (s *Supervisor) record(env environ.Environment, code int, errText string, reason lifecycle.ExitReason) {
	if s.jrnl == nil {
		return
	}
	if err := s.jrnl.Append(s.buildRecord(env, code, errText, reason)); err != nil {
		s.log.Warn("journal append failed", map[string]interface{}{"error": err.Error()})
	}
}

// rerecord replaces the already-written success row after exec itself
// failed. The journal was closed by the drain, so the row is rewritten
// through a fresh handle; run_id is the primary key.
func (s *Supervisor) rerecord(env environ.Environment, code int, errText string) {
	if s.cfg.Journal.Path == "" {
		return
	}
	j, err := journal.Open(s.cfg.Journal.Path)
	if err != nil {
		s.log.Warn("journal unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	defer j.Close()

	if err := j.Append(s.buildRecord(env, code, errText, lifecycle.ExitReasonHandoff)); err != nil {
		s.log.Warn("journal append failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Supervisor) buildRecord(env environ.Environment, code int, errText string, reason lifecycle.ExitReason) journal.Record {
	snap := s.tracker.Snapshot()
	return journal.Record{
		RunID:       snap.RunID,
		Service:     env.Service.Name,
		BaseImage:   env.BaseImage,
		WorkDir:     env.WorkDir,
		Artifact:    env.ArtifactAbs(),
		Phase:       snap.Phase,
		Reason:      reason,
		ExitCode:    code,
		Error:       errText,
		StartedAt:   snap.StartedAt,
		FinishedAt:  time.Now(),
		Transitions: snap.Transitions,
	}
}

func (s *Supervisor) flushTextfile() {
	if s.cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := s.rec.WriteTextfile(s.cfg.Metrics.TextfilePath); err != nil {
		s.log.Warn("metrics textfile flush failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Supervisor) drain() {
	for name, err := range s.drainer.Drain() {
		s.log.Warn("drain failed", map[string]interface{}{
			"resource": name,
			"error":    err.Error(),
		})
	}
}
