// Package action implements the three Step action executors: shell
// command, worktree-copy, and workspace-script.
package action

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/shuntksh/openturbo/internal/process"
	"github.com/shuntksh/openturbo/internal/workflow"
)

var (
	processManagerMu sync.Mutex
	processManager   *process.Manager
)

// SetProcessManager installs the shared process manager that every
// subsequent ExecuteCmd/ExecuteCmdWithTimeout call registers its child
// process with. A single mgr.Close then stops every step process still
// in flight across the whole run. Pass nil to stop registering entirely.
func SetProcessManager(mgr *process.Manager) {
	processManagerMu.Lock()
	processManager = mgr
	processManagerMu.Unlock()
}

func currentProcessManager() *process.Manager {
	processManagerMu.Lock()
	defer processManagerMu.Unlock()
	return processManager
}

func shellCommand(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", command)
	}
	return exec.Command("sh", "-c", command)
}

// ExecuteCmd runs command through a shell in cwd, capturing combined
// stdout/stderr. In verbose mode, output is echoed to the parent's stdout
// as it arrives.
func ExecuteCmd(ctx context.Context, command, cwd string, verbose bool) *workflow.ActionResult {
	cmd := shellCommand(command)
	cmd.Dir = cwd
	return ExecuteCmdWithTimeout(ctx, cmd, 0, verbose)
}

// ExecuteCmdWithTimeout runs a preconfigured *exec.Cmd, capturing combined
// stdout/stderr, optionally racing a per-invocation timeout that kills the
// whole process group on fire.
func ExecuteCmdWithTimeout(ctx context.Context, cmd *exec.Cmd, timeout time.Duration, verbose bool) (result *workflow.ActionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = &workflow.ActionResult{Success: false, Output: fmt.Sprintf("panic: %v", r), DurationMs: elapsedMs(start)}
		}
	}()

	captured, err := process.RunCaptured(ctx, cmd, timeout, verbose, currentProcessManager())
	duration := elapsedMs(start)

	if captured == nil {
		return &workflow.ActionResult{Success: false, Output: err.Error(), DurationMs: duration}
	}
	if captured.TimedOut {
		return &workflow.ActionResult{Success: false, Output: fmt.Sprintf("Timeout after %dms", timeout.Milliseconds()), DurationMs: duration}
	}
	if captured.ExitCode != 0 {
		return &workflow.ActionResult{Success: false, Output: captured.Output, DurationMs: duration}
	}
	return &workflow.ActionResult{Success: true, Output: captured.Output, DurationMs: duration}
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
