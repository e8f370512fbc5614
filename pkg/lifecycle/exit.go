package lifecycle

import (
	"fmt"
	"syscall"
)

// ExitReason describes why a launch terminated without reaching handoff
type ExitReason string

const (
	ExitReasonSuccess ExitReason = "success"       // Handoff occurred; the service owns the process
	ExitReasonStage   ExitReason = "stage_error"   // A provisioning or build stage exited non-zero
	ExitReasonSignal  ExitReason = "signal"        // Terminated by the container runtime before handoff
	ExitReasonHandoff ExitReason = "handoff_error" // Process replacement itself failed
)

// Exit codes for handoff failures, matching shell conventions so an
// orchestrator sees the same codes a `build && exec binary` CMD would yield.
const (
	ExitCodeNotExecutable = 126
	ExitCodeNotFound      = 127
)

// SignalExitCode maps a terminating signal to the conventional 128+N code.
func SignalExitCode(sig syscall.Signal) int {
	return 128 + int(sig)
}

// SignalName returns the signal name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}
