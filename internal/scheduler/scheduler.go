// Package scheduler drives execution of a resolved step set, consulting
// the branch predicate for skip decisions and delegating to the action
// executors, while aggregating results and honoring fail-fast.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shuntksh/openturbo/internal/action"
	"github.com/shuntksh/openturbo/internal/branch"
	"github.com/shuntksh/openturbo/internal/stepgraph"
	"github.com/shuntksh/openturbo/internal/workflow"
)

// ActionError reports that a step produced no usable action (zero or more
// than one action field set); surfaced as an immediate failure for that
// step rather than a configuration error, since it is only discoverable
// once that step would run.
type ActionError struct {
	Step string
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

// RunFailedError indicates the run completed (every step settled) but at
// least one step failed. The CLI layer maps this to exit code 1 without
// printing a stack trace.
type RunFailedError struct {
	FailedSteps []string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("%d step(s) failed: %v", len(e.FailedSteps), e.FailedSteps)
}

// StalledError means the control loop found nothing running and nothing
// ready while steps remained pending. The resolver already rejects cycles
// in dependsOn, so reaching this indicates a scheduler bug rather than bad
// input; asserted explicitly instead of completing silently.
type StalledError struct {
	Pending []string
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("scheduler stalled with step(s) pending and none running: %v", e.Pending)
}

// StepState is the scheduler-owned mutable record of one step's lifecycle.
type StepState struct {
	Step       *workflow.Step
	Status     workflow.Status
	DurationMs int64
	Output     string
}

// Renderer receives read-only notifications of step state transitions. The
// scheduler is the sole mutator of StepState; the renderer never aliases
// the same record.
type Renderer interface {
	UpdateStep(name string, status workflow.Status, durationMs int64)
}

// Options configures a single Run invocation.
type Options struct {
	CurrentBranch string
	InWorktree    bool
	FailFast      bool
	Verbose       bool
	GitRoot       string
	Worktrees     []*workflow.WorktreeInfo
	Renderer      Renderer
	NestedSink    action.NestedTaskSink
	Logger        hclog.Logger
}

// Result is the outcome of a Run.
type Result struct {
	States   map[string]*StepState
	Order    []string
	Duration time.Duration
}

// Run resolves requestedNames against allSteps, then executes the closed
// step set to completion. Returns (result, nil) on full success, or
// (result, *RunFailedError) if any step failed. If resolution fails the
// result is nil and the resolver's error is returned; otherwise the result
// is populated so callers can print per-step detail regardless of outcome.
func Run(ctx context.Context, allSteps []*workflow.Step, requestedNames []string, opts Options) (*Result, error) {
	steps, err := stepgraph.Resolve(allSteps, requestedNames)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	states := make(map[string]*StepState, len(steps))
	order := make([]string, len(steps))
	for i, s := range steps {
		order[i] = s.Name
		status := workflow.StatusPending
		if !branch.ShouldRun(s.Branches, opts.CurrentBranch, opts.InWorktree) {
			status = workflow.StatusSkipped
		}
		states[s.Name] = &StepState{Step: s, Status: status}
		if opts.Renderer != nil {
			opts.Renderer.UpdateStep(s.Name, status, 0)
		}
	}

	start := time.Now()
	var mu sync.Mutex
	running := 0
	settledCh := make(chan struct{}, len(steps))

	settle := func(name string, status workflow.Status, durationMs int64, output string) {
		logger.Debug("step settled", "step", name, "status", status, "duration_ms", durationMs)
		mu.Lock()
		st := states[name]
		st.Status = status
		st.DurationMs = durationMs
		st.Output = output
		running--
		mu.Unlock()
		if opts.Renderer != nil {
			opts.Renderer.UpdateStep(name, status, durationMs)
		}
		settledCh <- struct{}{}
	}

	for {
		mu.Lock()
		anyFailed := false
		for _, st := range states {
			if st.Status == workflow.StatusFailed {
				anyFailed = true
				break
			}
		}

		launched := false
		for _, name := range order {
			st := states[name]
			if st.Status != workflow.StatusPending {
				continue
			}

			depStatus, blocked := dependencyStatus(states, st.Step.DependsOn)
			if blocked {
				continue
			}
			if depStatus == workflow.StatusFailed || depStatus == workflow.StatusSkipped {
				st.Status = workflow.StatusSkipped
				mu.Unlock()
				if opts.Renderer != nil {
					opts.Renderer.UpdateStep(name, workflow.StatusSkipped, 0)
				}
				mu.Lock()
				continue
			}
			if opts.FailFast && anyFailed {
				st.Status = workflow.StatusSkipped
				mu.Unlock()
				if opts.Renderer != nil {
					opts.Renderer.UpdateStep(name, workflow.StatusSkipped, 0)
				}
				mu.Lock()
				continue
			}

			st.Status = workflow.StatusRunning
			running++
			launched = true
			logger.Debug("step starting", "step", name)
			mu.Unlock()
			if opts.Renderer != nil {
				opts.Renderer.UpdateStep(name, workflow.StatusRunning, 0)
			}
			go runStep(ctx, st.Step, opts, settle)
			mu.Lock()
		}
		var pendingNames []string
		for _, name := range order {
			if states[name].Status == workflow.StatusPending {
				pendingNames = append(pendingNames, name)
			}
		}
		stillRunning := running
		mu.Unlock()

		if stillRunning == 0 && len(pendingNames) == 0 {
			break
		}
		if stillRunning == 0 && len(pendingNames) > 0 && !launched {
			// No ready step and nothing in flight, yet work remains: this
			// would be silent completion in the source. Assert instead.
			return &Result{States: states, Order: order, Duration: time.Since(start)}, &StalledError{Pending: pendingNames}
		}
		if stillRunning > 0 {
			<-settledCh
		}
	}

	var failedNames []string
	for _, name := range order {
		if states[name].Status == workflow.StatusFailed {
			failedNames = append(failedNames, name)
		}
	}

	result := &Result{States: states, Order: order, Duration: time.Since(start)}
	if len(failedNames) > 0 {
		return result, &RunFailedError{FailedSteps: failedNames}
	}
	return result, nil
}

// dependencyStatus inspects a step's dependencies (ignoring names outside
// the resolved set) and returns the "worst" status among them plus whether
// the step is still blocked (some dependency not yet done).
func dependencyStatus(states map[string]*StepState, deps []string) (worst workflow.Status, blocked bool) {
	for _, dep := range deps {
		depState, ok := states[dep]
		if !ok {
			continue
		}
		switch depState.Status {
		case workflow.StatusDone:
			continue
		case workflow.StatusFailed:
			return workflow.StatusFailed, false
		case workflow.StatusSkipped:
			worst = workflow.StatusSkipped
		default:
			return "", true
		}
	}
	return worst, false
}

func runStep(ctx context.Context, step *workflow.Step, opts Options, settle func(name string, status workflow.Status, durationMs int64, output string)) {
	start := time.Now()
	kind, err := step.ResolveAction()
	if err != nil {
		settle(step.Name, workflow.StatusFailed, elapsedMs(start), (&ActionError{Step: step.Name, Err: err}).Error())
		return
	}

	var result *workflow.ActionResult
	switch kind {
	case workflow.ActionCmd:
		result = action.ExecuteCmd(ctx, *step.Cmd, opts.GitRoot, opts.Verbose)
	case workflow.ActionWorktreeCp:
		result = action.ExecuteWorktreeCopy(step.WorktreeCp, opts.Worktrees, opts.GitRoot)
	case workflow.ActionWorkspaceScript:
		result = action.ExecuteWorkspaceScript(ctx, step.Bun, opts.GitRoot, step.Name, opts.NestedSink, opts.Verbose)
	}

	status := workflow.StatusDone
	if !result.Success {
		status = workflow.StatusFailed
	}
	settle(step.Name, status, result.DurationMs, result.Output)
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
