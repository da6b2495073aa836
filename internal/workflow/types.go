// Package workflow holds the data model shared by every component of ot:
// workflows, steps, their actions, and the run-time config that wraps them.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Workflow is a named collection of Steps, declared either as a bare
// ordered array or as a record of the form {"steps": [...]}.
type Workflow struct {
	Name  string
	Steps []*Step
}

// workflowAlt is the `{steps: [...]}` record form of a Workflow.
type workflowAlt struct {
	Steps []*Step `json:"steps"`
}

// UnmarshalJSON accepts either a bare array of steps or {"steps": [...]}.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var alt workflowAlt
	if err := json.Unmarshal(data, &alt); err == nil && alt.Steps != nil {
		w.Steps = alt.Steps
		return nil
	}
	var steps []*Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	w.Steps = steps
	return nil
}

// Step is one unit of work in a Workflow.
type Step struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	DependsOn   []string    `json:"dependsOn,omitempty"`
	Branches    []string    `json:"branches,omitempty"`
	Cmd         *string     `json:"cmd,omitempty"`
	WorktreeCp  *WorktreeCp `json:"worktree:cp,omitempty"`
	Bun         *WorkspaceScript `json:"bun,omitempty"`
}

// Action identifies which of the three action kinds a Step carries.
type Action int

const (
	// ActionNone indicates the step has no action set; a configuration error.
	ActionNone Action = iota
	ActionCmd
	ActionWorktreeCp
	ActionWorkspaceScript
)

// ResolveAction inspects the step and returns which single action is set.
// Returns an error if zero or more than one action field is populated.
func (s *Step) ResolveAction() (Action, error) {
	count := 0
	action := ActionNone
	if s.Cmd != nil {
		count++
		action = ActionCmd
	}
	if s.WorktreeCp != nil {
		count++
		action = ActionWorktreeCp
	}
	if s.Bun != nil {
		count++
		action = ActionWorkspaceScript
	}
	switch count {
	case 0:
		return ActionNone, fmt.Errorf("step %q has no action (expected one of cmd, worktree:cp, bun)", s.Name)
	case 1:
		return action, nil
	default:
		return ActionNone, fmt.Errorf("step %q has %d actions, expected exactly one", s.Name, count)
	}
}

// WorktreeCp is the worktree:cp action. From names the source branch,
// optionally with a "worktree:" prefix; an empty From selects the main
// worktree.
type WorktreeCp struct {
	From         string   `json:"from"`
	Files        []string `json:"files"`
	AllowMissing bool     `json:"allowMissing,omitempty"`
}

// WorkspaceScript is the bun action: run a named script across workspace
// packages honoring TurboRepo-style dependsOn semantics (^task, task,
// pkg#task).
type WorkspaceScript struct {
	Script    string   `json:"script"`
	TimeoutMs int      `json:"timeout,omitempty"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// WorkspacePackage describes one package discovered by workspace expansion.
type WorkspacePackage struct {
	Name          string
	Path          string
	Scripts       map[string]string
	WorkspaceDeps []string
}

// TaskNode is one (package, script) unit of the inner task DAG.
type TaskNode struct {
	PackageName  string
	PackagePath  string
	Script       string
	Dependencies []string
}

// ID returns the task identifier "PKG#SCRIPT".
func (t *TaskNode) ID() string {
	return TaskID(t.PackageName, t.Script)
}

// TaskID builds a "PKG#SCRIPT" task identifier.
func TaskID(pkg, script string) string {
	return fmt.Sprintf("%s#%s", pkg, script)
}

// SplitTaskID reverses TaskID. If the id has no '#', pkg is empty and
// script is the whole id.
func SplitTaskID(id string) (pkg, script string) {
	for i := 0; i < len(id); i++ {
		if id[i] == '#' {
			return id[:i], id[i+1:]
		}
	}
	return "", id
}

// WorktreeInfo describes one git worktree. By convention the first worktree
// enumerated by `git worktree list` is the main one.
type WorktreeInfo struct {
	Path   string
	Branch string
	IsMain bool
}

// Status is the lifecycle state of a StepState.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ActionResult is the outcome of running a Step's action.
type ActionResult struct {
	Success    bool
	Output     string
	DurationMs int64
}

// WorktreeHook runs after `ot wt add` creates a new worktree, either a
// recursive file copy or a shell command executed inside the new worktree.
// The config-facing shape is {cmd: "..."}; see DESIGN.md for why the
// alternate {type:"command", command} shape from the upstream source was
// not carried forward.
type WorktreeHook struct {
	Type string `json:"type,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Cmd  string `json:"cmd,omitempty"`
}

// IsCopy reports whether this hook is a {type:"copy", from, to} hook.
func (h *WorktreeHook) IsCopy() bool {
	return h.Type == "copy"
}

// WorktreeDefaults configures the worktree manager's base directory.
type WorktreeDefaults struct {
	BaseDir string `json:"base_dir,omitempty"`
}

// WorktreeConfig is the "worktree" section of Config.
type WorktreeConfig struct {
	Defaults *WorktreeDefaults `json:"defaults,omitempty"`
	Hooks    *WorktreeHooks    `json:"hooks,omitempty"`
}

// WorktreeHooks holds the hooks to run after a worktree is created.
type WorktreeHooks struct {
	PostCreate []*WorktreeHook `json:"post_create,omitempty"`
}

// Config is the root configuration document: named workflows plus worktree
// defaults and hooks.
type Config struct {
	Workflows map[string]*Workflow `json:"workflows"`
	Worktree  *WorktreeConfig      `json:"worktree,omitempty"`
}
