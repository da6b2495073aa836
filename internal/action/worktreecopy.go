package action

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shuntksh/openturbo/internal/fsutil"
	"github.com/shuntksh/openturbo/internal/globby"
	"github.com/shuntksh/openturbo/internal/workflow"
)

const worktreePrefix = "worktree:"

// ExecuteWorktreeCopy resolves action.From against worktrees, globs its
// Files against the source worktree, and copies matches into the
// corresponding relative path under currentGitRoot. Missing sources fail
// the step unless action.AllowMissing is true, in which case they count as
// skipped. Patterns are matched with globby.GlobFiles, which returns files
// only: a pattern that names a directory matches nothing and is treated as
// a missing source, so directories are not copied recursively by name.
func ExecuteWorktreeCopy(action *workflow.WorktreeCp, worktrees []*workflow.WorktreeInfo, currentGitRoot string) (result *workflow.ActionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = &workflow.ActionResult{Success: false, Output: fmt.Sprintf("panic: %v", r), DurationMs: elapsedMs(start)}
		}
	}()

	branch := strings.TrimPrefix(action.From, worktreePrefix)
	srcRoot, err := findWorktree(worktrees, branch)
	if err != nil {
		return &workflow.ActionResult{Success: false, Output: err.Error(), DurationMs: elapsedMs(start)}
	}

	var lines []string
	success := true
	for _, pattern := range action.Files {
		matches := globby.GlobFiles(srcRoot, []string{pattern}, nil)
		if len(matches) == 0 {
			if action.AllowMissing {
				lines = append(lines, fmt.Sprintf("skip %s: no match", pattern))
				continue
			}
			success = false
			lines = append(lines, fmt.Sprintf("fail %s: no match", pattern))
			continue
		}
		for _, match := range matches {
			rel, err := filepath.Rel(srcRoot, match)
			if err != nil {
				success = false
				lines = append(lines, fmt.Sprintf("fail %s: %v", match, err))
				continue
			}
			dest, err := fsutil.WithinRoot(currentGitRoot, rel)
			if err != nil {
				return &workflow.ActionResult{Success: false, Output: err.Error(), DurationMs: elapsedMs(start)}
			}
			if err := copyOne(match, dest); err != nil {
				success = false
				lines = append(lines, fmt.Sprintf("fail %s: %v", rel, err))
				continue
			}
			lines = append(lines, fmt.Sprintf("copied %s", rel))
		}
	}

	return &workflow.ActionResult{Success: success, Output: strings.Join(lines, "\n"), DurationMs: elapsedMs(start)}
}

func copyOne(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fsutil.RecursiveCopy(from, to)
	}
	if err := os.MkdirAll(filepath.Dir(to), fsutil.DirPermissions); err != nil {
		return err
	}
	return fsutil.RecursiveCopy(from, to)
}

func findWorktree(worktrees []*workflow.WorktreeInfo, branch string) (string, error) {
	if branch == "" {
		for _, w := range worktrees {
			if w.IsMain {
				return w.Path, nil
			}
		}
		if len(worktrees) > 0 {
			return worktrees[0].Path, nil
		}
		return "", fmt.Errorf("no worktrees known")
	}
	for _, w := range worktrees {
		if w.Branch == branch {
			return w.Path, nil
		}
	}
	return "", fmt.Errorf("unknown worktree/branch %q", branch)
}
