package action

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shuntksh/openturbo/internal/taskgraph"
	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/shuntksh/openturbo/internal/workspace"
)

// NestedTaskSink receives per-task lifecycle notifications so the progress
// renderer can show a nested tree under the owning step. Implemented by
// internal/progress.Renderer; defined here so this package has no
// dependency on it.
type NestedTaskSink interface {
	RegisterTask(stepName, taskID string)
	SetTaskRunning(stepName, taskID string)
	SetTaskDone(stepName, taskID string, success bool, durationMs int64)
}

// ExecuteWorkspaceScript discovers workspace packages under rootDir,
// filters to those with the requested script, builds and layers the task
// DAG, then runs layer by layer, each layer's tasks in parallel. Layer k+1
// never starts if layer k contained a failure.
func ExecuteWorkspaceScript(ctx context.Context, action *workflow.WorkspaceScript, rootDir, stepName string, sink NestedTaskSink, verbose bool) (result *workflow.ActionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = &workflow.ActionResult{Success: false, Output: fmt.Sprintf("panic: %v", r), DurationMs: elapsedMs(start)}
		}
	}()

	pkgs, err := workspace.Discover(rootDir)
	if err != nil {
		return &workflow.ActionResult{Success: false, Output: err.Error(), DurationMs: elapsedMs(start)}
	}

	filtered := make(map[string]*workflow.WorkspacePackage)
	for name, pkg := range pkgs {
		if _, ok := pkg.Scripts[action.Script]; ok {
			filtered[name] = pkg
		}
	}
	if len(filtered) == 0 {
		return &workflow.ActionResult{Success: false, Output: fmt.Sprintf("no workspace package has script %q", action.Script), DurationMs: elapsedMs(start)}
	}

	nodes := taskgraph.Build(action.Script, action.DependsOn, filtered)
	layers, err := taskgraph.LayerTasks(nodes)
	if err != nil {
		return &workflow.ActionResult{Success: false, Output: err.Error(), DurationMs: elapsedMs(start)}
	}

	if sink != nil {
		for _, n := range nodes {
			sink.RegisterTask(stepName, n.ID())
		}
	}

	var summary []string
	overallSuccess := true

	timeout := time.Duration(action.TimeoutMs) * time.Millisecond

layerLoop:
	for _, layer := range layers {
		var wg sync.WaitGroup
		outcomes := make([]string, len(layer))
		failed := make([]bool, len(layer))

		for i, task := range layer {
			wg.Add(1)
			go func(i int, task *workflow.TaskNode) {
				defer wg.Done()
				if sink != nil {
					sink.SetTaskRunning(stepName, task.ID())
				}
				taskStart := time.Now()
				r := runScript(ctx, filtered[task.PackageName], task.Script, timeout, verbose)
				duration := elapsedMs(taskStart)
				if sink != nil {
					sink.SetTaskDone(stepName, task.ID(), r.Success, duration)
				}
				failed[i] = !r.Success
				firstLine := r.Output
				if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
					firstLine = firstLine[:idx]
				}
				if r.Success {
					outcomes[i] = fmt.Sprintf("%s: ok", task.ID())
				} else {
					outcomes[i] = fmt.Sprintf("%s: failed: %s", task.ID(), firstLine)
				}
			}(i, task)
		}
		wg.Wait()

		summary = append(summary, outcomes...)
		for _, f := range failed {
			if f {
				overallSuccess = false
				break layerLoop
			}
		}
	}

	return &workflow.ActionResult{Success: overallSuccess, Output: strings.Join(summary, "\n"), DurationMs: elapsedMs(start)}
}

func runScript(ctx context.Context, pkg *workflow.WorkspacePackage, script string, timeout time.Duration, verbose bool) *workflow.ActionResult {
	command, ok := pkg.Scripts[script]
	if !ok {
		return &workflow.ActionResult{Success: false, Output: fmt.Sprintf("package %s has no script %q", pkg.Name, script)}
	}
	cmd := shellCommand(command)
	cmd.Dir = pkg.Path

	result := ExecuteCmdWithTimeout(ctx, cmd, timeout, verbose)
	return result
}
