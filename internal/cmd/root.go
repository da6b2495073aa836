// Package cmd holds the root cobra command for ot.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/shuntksh/openturbo/internal/action"
	"github.com/shuntksh/openturbo/internal/cmdutil"
	"github.com/shuntksh/openturbo/internal/config"
	"github.com/shuntksh/openturbo/internal/gitutil"
	"github.com/shuntksh/openturbo/internal/process"
	"github.com/shuntksh/openturbo/internal/progress"
	"github.com/shuntksh/openturbo/internal/scheduler"
	"github.com/shuntksh/openturbo/internal/signals"
	"github.com/shuntksh/openturbo/internal/stepgraph"
	"github.com/shuntksh/openturbo/internal/taskgraph"
	"github.com/shuntksh/openturbo/internal/ui"
	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/shuntksh/openturbo/internal/workspace"
	"github.com/shuntksh/openturbo/internal/worktree"
)

// RunWithArgs runs ot with the specified arguments, not including the
// binary name itself. It returns the process exit code.
func RunWithArgs(args []string, version string) int {
	signalWatcher := signals.NewWatcher()
	helper := cmdutil.NewHelper(version)
	root := getCmd(helper)
	defer helper.Cleanup()
	root.SetArgs(args)

	// A single process manager supervises every step process started
	// across this invocation (ot <job> may run many steps, sequentially
	// or in parallel layers). Registering it with the signal watcher
	// means Ctrl-C/SIGTERM stops every in-flight step process instead of
	// only the one closest to the terminal.
	procMgr := process.NewManager(hclog.NewNullLogger())
	action.SetProcessManager(procMgr)
	signalWatcher.AddOnClose(procMgr.Close)
	defer procMgr.Close()

	doneCh := make(chan struct{})
	var execErr error
	go func() {
		execErr = root.Execute()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		signalWatcher.Close()
		var exitErr *cmdutil.Error
		if asExitErr(execErr, &exitErr) {
			return exitErr.ExitCode
		} else if execErr != nil {
			return 1
		}
		return 0
	case <-signalWatcher.Done():
		return 1
	}
}

func asExitErr(err error, target **cmdutil.Error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*cmdutil.Error); ok {
		*target = e
		return true
	}
	return false
}

func getCmd(helper *cmdutil.Helper) *cobra.Command {
	var jobFlag string
	var failFast bool
	var showGraph bool

	root := &cobra.Command{
		Use:           "ot <job>",
		Short:         "A TurboRepo-style task runner with Git worktree awareness",
		Version:       helper.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			job := jobFlag
			if len(args) > 0 {
				job = args[0]
			}
			if job == "" {
				return &cmdutil.Error{ExitCode: 1, Err: fmt.Errorf("missing job: usage is %q or %q", "ot <job>", "ot --job <job>")}
			}
			return runJob(cmd.Context(), helper, job, failFast, showGraph)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	helper.AddFlags(flags)
	flags.StringVar(&jobFlag, "job", "", "the job (workflow name) to run")
	flags.BoolVar(&failFast, "fail-fast", true, "stop launching new steps after the first failure")
	flags.BoolVar(&showGraph, "graph", false, "print the resolved step (and task) DAG instead of running")

	root.AddCommand(schemaCmd())
	root.AddCommand(worktreeCmd(helper))

	return root
}

func runJob(ctx context.Context, helper *cmdutil.Helper, job string, failFast, showGraph bool) error {
	base, err := helper.GetCmdBase("")
	if err != nil {
		return &cmdutil.Error{ExitCode: 1, Err: err}
	}

	wf, ok := base.Config.Workflows[job]
	if !ok {
		return &cmdutil.Error{ExitCode: 1, Err: fmt.Errorf("unknown job %q", job)}
	}

	names := make([]string, len(wf.Steps))
	for i, s := range wf.Steps {
		names[i] = s.Name
	}

	resolved, err := stepgraph.Resolve(wf.Steps, names)
	if err != nil {
		return &cmdutil.Error{ExitCode: 1, Err: err}
	}

	if showGraph {
		printGraph(base.UI, base.GitRoot, resolved)
		return nil
	}

	renderer := progress.NewForStdout(ui.IsTTY)
	for _, step := range resolved {
		renderer.AddStep(step.Name)
	}
	defer renderer.Close()

	worktrees, _ := worktreeInfos(base)

	// Every log line this run emits carries the same run_id, so lines from
	// concurrently running steps can be untangled in aggregated output.
	runLogger := base.Logger.With("run_id", uuid.New().String())

	result, runErr := scheduler.Run(ctx, wf.Steps, names, scheduler.Options{
		CurrentBranch: base.CurrentBranch,
		InWorktree:    base.InWorktree,
		FailFast:      failFast,
		Verbose:       base.Verbose,
		GitRoot:       base.GitRoot,
		Worktrees:     worktrees,
		Renderer:      renderer,
		NestedSink:    renderer,
		Logger:        runLogger,
	})

	printSummary(base.UI, result)

	if runErr != nil {
		return &cmdutil.Error{ExitCode: 1, Err: runErr}
	}
	return nil
}

func worktreeInfos(base *cmdutil.CmdBase) ([]*workflow.WorktreeInfo, error) {
	if base.WorktreeManager == nil {
		return nil, nil
	}
	return base.WorktreeManager.List()
}

func printSummary(out interface{ Output(string) }, result *scheduler.Result) {
	if result == nil {
		return
	}
	var passed, failedCount, skipped int
	for _, name := range result.Order {
		switch result.States[name].Status {
		case workflow.StatusDone:
			passed++
		case workflow.StatusFailed:
			failedCount++
		case workflow.StatusSkipped:
			skipped++
		}
	}
	out.Output(fmt.Sprintf("\n%d passed, %d failed, %d skipped (%s)", passed, failedCount, skipped, progress.FormatDuration(result.Duration.Milliseconds())))
	if failedCount > 0 {
		out.Output("FAILED")
		for _, name := range result.Order {
			st := result.States[name]
			if st.Status == workflow.StatusFailed {
				out.Output(fmt.Sprintf("  %s: %s", name, strings.TrimSpace(st.Output)))
			}
		}
	}
}

func printGraph(out interface{ Output(string) }, gitRoot string, steps []*workflow.Step) {
	var pkgs map[string]*workflow.WorkspacePackage
	for _, step := range steps {
		out.Output(step.Name)
		for _, dep := range step.DependsOn {
			out.Output(fmt.Sprintf("  <- %s", dep))
		}
		if step.Bun != nil {
			if pkgs == nil {
				pkgs, _ = workspace.Discover(gitRoot)
			}
			printTaskGraph(out, step, pkgs)
		}
	}
}

func printTaskGraph(out interface{ Output(string) }, step *workflow.Step, pkgs map[string]*workflow.WorkspacePackage) {
	nodes := taskgraph.Build(step.Bun.Script, step.Bun.DependsOn, pkgs)
	layers, err := taskgraph.LayerTasks(nodes)
	if err != nil {
		out.Output(fmt.Sprintf("    (task graph error: %v)", err))
		return
	}
	for i, layer := range layers {
		for _, n := range layer {
			out.Output(fmt.Sprintf("    [%d] %s", i, n.ID()))
		}
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "print the JSON Schema of the workflow config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := config.Schema()
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			_, err = os.Stdout.Write(append(b, '\n'))
			return err
		},
	}
}

func worktreeCmd(helper *cmdutil.Helper) *cobra.Command {
	wt := &cobra.Command{
		Use:     "wt",
		Aliases: []string{"worktree"},
		Short:   "manage git worktrees",
	}
	wt.AddCommand(worktreeAddCmd(helper))
	wt.AddCommand(worktreeRemoveCmd(helper))
	wt.AddCommand(worktreeListCmd(helper))
	wt.AddCommand(worktreeCopyCmd(helper))
	return wt
}

func worktreeCopyCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:           "cp <src> <dest>",
		Short:         "copy files between worktrees, each as [BRANCH@]PATH",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase("")
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			cwd, err := os.Getwd()
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			if err := base.WorktreeManager.Copy(args[0], args[1], cwd); err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			return nil
		},
	}
}

func worktreeAddCmd(helper *cmdutil.Helper) *cobra.Command {
	var newBranch, base string
	var force bool
	cmd := &cobra.Command{
		Use:           "add <branch>",
		Short:         "create a new worktree",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base2, err := helper.GetCmdBase("")
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			info, err := base2.WorktreeManager.Add(cmd.Context(), args[0], worktree.AddOptions{
				NewBranch: newBranch,
				Base:      base,
				Force:     force,
			})
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			base2.UI.Output(fmt.Sprintf("created worktree at %s", info.Path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&newBranch, "branch", "b", "", "create a new branch with this name")
	cmd.Flags().StringVar(&base, "base", "", "base ref for the new branch")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing worktree path")
	return cmd
}

func worktreeRemoveCmd(helper *cmdutil.Helper) *cobra.Command {
	var force, withBranch bool
	cmd := &cobra.Command{
		Use:           "remove <branch>",
		Aliases:       []string{"rm"},
		Short:         "remove a worktree",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase("")
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			if err := base.WorktreeManager.Remove(args[0], worktree.RemoveOptions{Force: force, DeleteBranch: withBranch}); err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			base.UI.Output(fmt.Sprintf("removed worktree %s", args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "force removal of a dirty worktree")
	cmd.Flags().BoolVar(&withBranch, "with-branch", false, "also force-delete the branch")
	return cmd
}

func worktreeListCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Aliases:       []string{"ls"},
		Short:         "list worktrees",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase("")
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			infos, err := base.WorktreeManager.List()
			if err != nil {
				return &cmdutil.Error{ExitCode: 1, Err: err}
			}
			client := gitutil.New(base.GitRoot)
			for _, info := range infos {
				hash := client.ShortHeadAt(info.Path)
				marker := ""
				if info.IsMain {
					marker = " (main)"
				}
				base.UI.Output(fmt.Sprintf("%s  %-30s %s%s", hash, info.Branch, info.Path, marker))
			}
			return nil
		},
	}
}
