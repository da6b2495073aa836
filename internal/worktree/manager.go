// Package worktree implements add/remove/list/copy for git worktrees, with
// path-traversal safety and post-create hooks.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/cli"
	"github.com/nightlyone/lockfile"
	"github.com/shuntksh/openturbo/internal/action"
	"github.com/shuntksh/openturbo/internal/fsutil"
	"github.com/shuntksh/openturbo/internal/gitutil"
	"github.com/shuntksh/openturbo/internal/globby"
	"github.com/shuntksh/openturbo/internal/spinner"
	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/yookoala/realpath"
)

const defaultBaseDir = "../worktrees"

// Error distinguishes worktree-manager failures (target exists, main
// worktree removal, path traversal, unknown branch) for CLI exit mapping.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Manager owns the git root, config, and resolved base directory for
// worktree operations.
type Manager struct {
	GitRoot string
	BaseDir string
	Config  *workflow.WorktreeConfig
	Logger  hclog.Logger
	UI      cli.Ui
}

// New resolves baseDir (config.worktree.defaults.base_dir, relative to
// gitRoot, default "../worktrees") and returns a Manager.
func New(gitRoot string, cfg *workflow.WorktreeConfig, logger hclog.Logger, ui cli.Ui) *Manager {
	base := defaultBaseDir
	if cfg != nil && cfg.Defaults != nil && cfg.Defaults.BaseDir != "" {
		base = cfg.Defaults.BaseDir
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{
		GitRoot: gitRoot,
		BaseDir: filepath.Clean(filepath.Join(gitRoot, base)),
		Config:  cfg,
		Logger:  logger.Named("worktree"),
		UI:      ui,
	}
}

func (m *Manager) lock() (lockfile.Lockfile, error) {
	lf, err := lockfile.New(filepath.Join(os.TempDir(), "ot-worktree.lock"))
	if err != nil {
		return lf, err
	}
	return lf, lf.TryLock()
}

// List enumerates worktrees from `git worktree list --porcelain`, marking
// the first as main. It does not look up HEAD hashes.
func (m *Manager) List() ([]*workflow.WorktreeInfo, error) {
	client := gitutil.New(m.GitRoot)
	records, err := client.WorktreeListPorcelain()
	if err != nil {
		return nil, err
	}
	infos := make([]*workflow.WorktreeInfo, len(records))
	for i, rec := range records {
		infos[i] = &workflow.WorktreeInfo{Path: rec.Path, Branch: rec.Branch, IsMain: i == 0}
	}
	return infos, nil
}

// AddOptions configures Add.
type AddOptions struct {
	NewBranch string
	Base      string
	Force     bool
}

// Add creates a worktree for branch under the manager's base directory,
// then runs post-create hooks (logged on failure, never aborting the add).
func (m *Manager) Add(ctx context.Context, branch string, opts AddOptions) (*workflow.WorktreeInfo, error) {
	lf, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer lf.Unlock()

	if err := os.MkdirAll(m.BaseDir, fsutil.DirPermissions); err != nil {
		return nil, err
	}

	name := branch
	if opts.NewBranch != "" {
		name = opts.NewBranch
	}
	path := filepath.Join(m.BaseDir, name)

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return nil, &Error{Message: fmt.Sprintf("worktree path already exists: %s", path)}
	}

	client := gitutil.New(m.GitRoot)
	if err := client.WorktreeAdd(path, branch, opts.NewBranch, opts.Base, opts.Force); err != nil {
		return nil, &Error{Message: err.Error()}
	}

	info := &workflow.WorktreeInfo{Path: path, Branch: name}

	if err := m.runPostCreateHooks(ctx, path); err != nil {
		m.Logger.Warn("post-create hook failed", "error", err)
	}

	return info, nil
}

// RemoveOptions configures Remove.
type RemoveOptions struct {
	Force        bool
	DeleteBranch bool
}

// Remove locates the worktree by branch (or path suffix), refuses to
// remove the main worktree, and optionally force-deletes the branch.
func (m *Manager) Remove(branch string, opts RemoveOptions) error {
	lf, err := m.lock()
	if err != nil {
		return err
	}
	defer lf.Unlock()

	worktrees, err := m.List()
	if err != nil {
		return err
	}

	var target *workflow.WorktreeInfo
	for _, w := range worktrees {
		if w.Branch == branch || filepath.Base(w.Path) == branch {
			target = w
			break
		}
	}
	if target == nil {
		return &Error{Message: fmt.Sprintf("unknown worktree/branch %q", branch)}
	}
	if target.IsMain {
		return &Error{Message: "refusing to remove the main worktree"}
	}

	client := gitutil.New(m.GitRoot)
	if err := client.WorktreeRemove(target.Path, opts.Force); err != nil {
		return &Error{Message: err.Error()}
	}

	if opts.DeleteBranch {
		if err := client.BranchDeleteForce(target.Branch); err != nil {
			m.Logger.Warn("branch delete failed", "branch", target.Branch, "error", err)
		}
	}
	return nil
}

// Copy resolves src/dest as "[BRANCH@]PATH", globs the source if it
// contains meta characters, and copies into the destination worktree,
// refusing any resolved path that would escape the destination root.
func (m *Manager) Copy(src, dest, cwd string) error {
	worktrees, err := m.List()
	if err != nil {
		return err
	}

	srcBranch, srcPath := splitBranchPath(src)
	destBranch, destPath := splitBranchPath(dest)

	srcRoot, err := resolveWorktreeRoot(worktrees, srcBranch, m.GitRoot)
	if err != nil {
		return err
	}
	destRoot, err := resolveWorktreeRoot(worktrees, destBranch, m.GitRoot)
	if err != nil {
		return err
	}

	srcPath = relativeToGitRoot(m.GitRoot, cwd, srcPath)
	destPath = relativeToGitRoot(m.GitRoot, cwd, destPath)

	if hasGlobMeta(srcPath) {
		matches := globby.GlobFiles(srcRoot, []string{srcPath}, nil)
		if len(matches) == 0 {
			return &Error{Message: fmt.Sprintf("no match for %s", srcPath)}
		}
		var errs *multierror.Error
		for _, match := range matches {
			rel, err := filepath.Rel(srcRoot, match)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			dest, err := fsutil.WithinRoot(destRoot, filepath.Join(destPath, rel))
			if err != nil {
				return &Error{Message: err.Error()}
			}
			if err := fsutil.RecursiveCopy(match, dest); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		return errs.ErrorOrNil()
	}

	fullSrc, err := fsutil.WithinRoot(srcRoot, srcPath)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	if _, err := os.Stat(fullSrc); err != nil {
		return &Error{Message: fmt.Sprintf("source path missing: %s", fullSrc)}
	}
	destFull, err := fsutil.WithinRoot(destRoot, destPath)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	return fsutil.RecursiveCopy(fullSrc, destFull)
}

func (m *Manager) runPostCreateHooks(ctx context.Context, worktreePath string) error {
	if m.Config == nil || m.Config.Hooks == nil || len(m.Config.Hooks.PostCreate) == 0 {
		return nil
	}

	var errs *multierror.Error
	for _, hook := range m.Config.Hooks.PostCreate {
		hook := hook
		err := spinner.WaitFor(ctx, func() {
			if hook.IsCopy() {
				src, destErr := fsutil.WithinRoot(m.GitRoot, hook.From)
				if destErr != nil {
					errs = multierror.Append(errs, destErr)
					return
				}
				dest, destErr := fsutil.WithinRoot(worktreePath, hook.To)
				if destErr != nil {
					errs = multierror.Append(errs, destErr)
					return
				}
				if copyErr := fsutil.RecursiveCopy(src, dest); copyErr != nil {
					errs = multierror.Append(errs, copyErr)
				}
				return
			}
			if hook.Cmd != "" {
				res := action.ExecuteCmd(ctx, hook.Cmd, worktreePath, false)
				if !res.Success {
					errs = multierror.Append(errs, fmt.Errorf("hook %q failed: %s", hook.Cmd, res.Output))
				}
			}
		}, m.UI, "running post-create hook...", 500*time.Millisecond)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func resolveWorktreeRoot(worktrees []*workflow.WorktreeInfo, branch, gitRoot string) (string, error) {
	if branch == "" {
		return gitRoot, nil
	}
	for _, w := range worktrees {
		if w.Branch == branch {
			resolved, err := realpath.Realpath(w.Path)
			if err != nil {
				return w.Path, nil
			}
			return resolved, nil
		}
	}
	return "", &Error{Message: fmt.Sprintf("unknown worktree/branch %q", branch)}
}

func splitBranchPath(spec string) (branch, path string) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '@' {
			return spec[:i], spec[i+1:]
		}
	}
	return "", spec
}

// relativeToGitRoot strips a cwd-relative prefix so that a relative path
// behaves consistently regardless of the subdirectory the user invoked
// from: we re-root it against the git repo root rather than cwd.
func relativeToGitRoot(gitRoot, cwd, path string) string {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(gitRoot, path)
		if err == nil {
			return rel
		}
		return path
	}
	abs := filepath.Join(cwd, path)
	rel, err := filepath.Rel(gitRoot, abs)
	if err != nil {
		return path
	}
	return rel
}

func hasGlobMeta(s string) bool {
	for _, c := range s {
		if c == '*' || c == '?' || c == '[' {
			return true
		}
	}
	return false
}
