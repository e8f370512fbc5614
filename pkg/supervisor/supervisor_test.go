package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hookline/stagezero/pkg/config"
	"github.com/hookline/stagezero/pkg/journal"
	"github.com/hookline/stagezero/pkg/lifecycle"
	"github.com/hookline/stagezero/pkg/logging"
	"github.com/hookline/stagezero/pkg/sysexec"
)

type fakeExit struct{ code int }

func (e *fakeExit) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e *fakeExit) ExitCode() int { return e.code }

// fakeRunner records every invocation, optionally failing the command whose
// argv[0] matches failOn, and optionally running a hook on success (used to
// materialize the build artifact).
type fakeRunner struct {
	calls    []sysexec.Command
	failOn   string
	failCode int
	onRun    func(cmd sysexec.Command)
}

func (r *fakeRunner) Run(_ context.Context, cmd sysexec.Command) error {
	r.calls = append(r.calls, cmd)
	if r.failOn != "" && cmd.Argv[0] == r.failOn {
		return &fakeExit{code: r.failCode}
	}
	if r.onRun != nil {
		r.onRun(cmd)
	}
	return nil
}

func (r *fakeRunner) countArgv0(name string) int {
	n := 0
	for _, c := range r.calls {
		if c.Argv[0] == name {
			n++
		}
	}
	return n
}

type execCall struct {
	argv0 string
	argv  []string
	env   []string
}

// recordingExecer observes the handoff without replacing the test process.
type recordingExecer struct {
	calls []execCall
}

func (e *recordingExecer) Exec(argv0 string, argv []string, env []string) error {
	e.calls = append(e.calls, execCall{argv0: argv0, argv: argv, env: env})
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkDir = filepath.Join(t.TempDir(), "app")
	return cfg
}

// writeArtifact returns an onRun hook that creates the executable artifact
// when the build command runs, the way a real build would.
func writeArtifact(t *testing.T, cfg config.Config) func(sysexec.Command) {
	t.Helper()
	path := cfg.Environment().ArtifactAbs()
	return func(cmd sysexec.Command) {
		if cmd.Argv[0] != "cargo" {
			return
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("prepare artifact dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}
}

func newTestSupervisor(t *testing.T, cfg config.Config, runner *fakeRunner, execer *recordingExecer) *Supervisor {
	t.Helper()
	s, err := New(Options{
		Config:    cfg,
		Logger:    logging.NewLogger(logging.ERROR, false),
		Runner:    runner,
		Execer:    execer,
		SkipChdir: true,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestTrustFailureSkipsBuildAndHandoff(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{failOn: "apt-get", failCode: 100}
	execer := &recordingExecer{}
	s := newTestSupervisor(t, cfg, runner, execer)

	err := s.Run(context.Background())

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != 100 {
		t.Errorf("exit code = %d, want 100 (no remapping)", exitErr.Code)
	}
	if got := runner.countArgv0("cargo"); got != 0 {
		t.Errorf("build invocations = %d, want 0 after trust failure", got)
	}
	if len(execer.calls) != 0 {
		t.Errorf("exec invocations = %d, want 0", len(execer.calls))
	}
	if got := s.Tracker().Phase(); got != lifecycle.PhaseFailed {
		t.Errorf("phase = %v, want failed", got)
	}
}

func TestBuildFailureSkipsHandoff(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{failOn: "cargo", failCode: 101}
	execer := &recordingExecer{}
	s := newTestSupervisor(t, cfg, runner, execer)

	err := s.Run(context.Background())

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != 101 {
		t.Errorf("exit code = %d, want 101", exitErr.Code)
	}
	if len(execer.calls) != 0 {
		t.Errorf("exec invocations = %d, want 0 after build failure", len(execer.calls))
	}
}

func TestSuccessfulLaunchHandsOffOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Service.Args = []string{"--port", "8080"}
	cfg.Service.Env = []string{"RUST_LOG=info"}
	runner := &fakeRunner{onRun: writeArtifact(t, cfg)}
	execer := &recordingExecer{}
	s := newTestSupervisor(t, cfg, runner, execer)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(execer.calls) != 1 {
		t.Fatalf("exec invocations = %d, want exactly 1", len(execer.calls))
	}
	call := execer.calls[0]
	artifact := cfg.Environment().ArtifactAbs()
	if call.argv0 != artifact {
		t.Errorf("exec argv0 = %q, want artifact %q", call.argv0, artifact)
	}
	wantArgv := []string{artifact, "--port", "8080"}
	if len(call.argv) != len(wantArgv) {
		t.Fatalf("exec argv = %v, want %v", call.argv, wantArgv)
	}
	for i := range wantArgv {
		if call.argv[i] != wantArgv[i] {
			t.Errorf("exec argv[%d] = %q, want %q", i, call.argv[i], wantArgv[i])
		}
	}
	found := false
	for _, kv := range call.env {
		if kv == "RUST_LOG=info" {
			found = true
		}
	}
	if !found {
		t.Error("service env entry missing from exec environment")
	}

	snap := s.Tracker().Snapshot()
	if snap.Phase != lifecycle.PhaseRunning {
		t.Errorf("terminal phase = %v, want running", snap.Phase)
	}
	running := 0
	for _, tr := range snap.Transitions {
		if tr.To == lifecycle.PhaseRunning {
			running++
		}
	}
	if running != 1 {
		t.Errorf("transitions into running = %d, want exactly 1", running)
	}
}

func TestLaunchOrderIsFixed(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{onRun: writeArtifact(t, cfg)}
	execer := &recordingExecer{}
	s := newTestSupervisor(t, cfg, runner, execer)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := [][2]string{
		{"apt-get", "update"},
		{"apt-get", "install"},
		{"cargo", "build"},
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("invocation count = %d, want %d: %v", len(runner.calls), len(want), runner.calls)
	}
	for i, w := range want {
		argv := runner.calls[i].Argv
		if argv[0] != w[0] || argv[1] != w[1] {
			t.Errorf("invocation %d = %v, want %s %s ...", i, argv, w[0], w[1])
		}
	}
}

// Two launches of the same manifest provision identically: same command
// sequence, same terminal state.
func TestRelaunchIsIdempotent(t *testing.T) {
	cfg := testConfig(t)

	var sequences [][]string
	for run := 0; run < 2; run++ {
		runner := &fakeRunner{onRun: writeArtifact(t, cfg)}
		execer := &recordingExecer{}
		s := newTestSupervisor(t, cfg, runner, execer)

		if err := s.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if got := s.Tracker().Phase(); got != lifecycle.PhaseRunning {
			t.Errorf("run %d terminal phase = %v, want running", run, got)
		}

		var seq []string
		for _, c := range runner.calls {
			seq = append(seq, c.String())
		}
		sequences = append(sequences, seq)
	}

	if len(sequences[0]) != len(sequences[1]) {
		t.Fatalf("runs diverged: %v vs %v", sequences[0], sequences[1])
	}
	for i := range sequences[0] {
		if sequences[0][i] != sequences[1][i] {
			t.Errorf("invocation %d diverged: %q vs %q", i, sequences[0][i], sequences[1][i])
		}
	}
}

func TestMissingArtifactFailsWith127(t *testing.T) {
	cfg := testConfig(t)
	// Build "succeeds" but produces nothing.
	runner := &fakeRunner{}
	execer := &recordingExecer{}
	s := newTestSupervisor(t, cfg, runner, execer)

	err := s.Run(context.Background())

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Code != lifecycle.ExitCodeNotFound {
		t.Errorf("exit code = %d, want %d", exitErr.Code, lifecycle.ExitCodeNotFound)
	}
	if len(execer.calls) != 0 {
		t.Errorf("exec invocations = %d, want 0 for missing artifact", len(execer.calls))
	}
}

func TestCanceledContextAbortsBeforeNextStage(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	execer := &recordingExecer{}
	s := newTestSupervisor(t, cfg, runner, execer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("invocations after cancel = %d, want 0", len(runner.calls))
	}
	if got := s.Tracker().Phase(); got != lifecycle.PhaseFailed {
		t.Errorf("phase = %v, want failed", got)
	}
}

func TestFailedLaunchIsJournaled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "launches.db")
	runner := &fakeRunner{failOn: "cargo", failCode: 101}
	s := newTestSupervisor(t, cfg, runner, &recordingExecer{})

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected launch failure")
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j.Close()

	recs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("journal records = %d, want 1", len(recs))
	}
	if recs[0].Phase != lifecycle.PhaseFailed || recs[0].ExitCode != 101 {
		t.Errorf("journaled phase=%v code=%d, want failed/101", recs[0].Phase, recs[0].ExitCode)
	}
	if recs[0].Reason != lifecycle.ExitReasonStage {
		t.Errorf("journaled reason = %q, want %q", recs[0].Reason, lifecycle.ExitReasonStage)
	}
}

// failingExecer simulates the artifact vanishing between verify and exec.
type failingExecer struct{ err error }

func (e failingExecer) Exec(string, []string, []string) error { return e.err }

func TestExecFailureRewritesJournalRecord(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "launches.db")
	runner := &fakeRunner{onRun: writeArtifact(t, cfg)}

	s, err := New(Options{
		Config:    cfg,
		Logger:    logging.NewLogger(logging.ERROR, false),
		Runner:    runner,
		Execer:    failingExecer{err: errors.New("exec format error")},
		SkipChdir: true,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	runErr := s.Run(context.Background())
	var exitErr *ExitError
	if !errors.As(runErr, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", runErr)
	}
	if exitErr.Code != lifecycle.ExitCodeNotExecutable {
		t.Errorf("exit code = %d, want %d", exitErr.Code, lifecycle.ExitCodeNotExecutable)
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j.Close()

	recs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("journal records = %d, want 1 (rewritten, not appended)", len(recs))
	}
	rec := recs[0]
	if rec.ExitCode != lifecycle.ExitCodeNotExecutable || rec.Reason != lifecycle.ExitReasonHandoff {
		t.Errorf("journaled code=%d reason=%q, want %d/%q",
			rec.ExitCode, rec.Reason, lifecycle.ExitCodeNotExecutable, lifecycle.ExitReasonHandoff)
	}
	if rec.Error == "" {
		t.Error("journaled error text is empty after exec failure")
	}
}
