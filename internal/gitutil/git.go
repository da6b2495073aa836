// Package gitutil is a thin subprocess wrapper around the git contracts
// this runner needs: finding the repo root, the current branch, listing and
// managing worktrees, and resolving a short commit hash.
package gitutil

import (
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Client invokes git as a subprocess rooted at a working directory.
type Client struct {
	// Dir is the directory git commands are run from (cmd.Dir).
	Dir string
}

// New returns a Client rooted at dir.
func New(dir string) *Client {
	return &Client{Dir: dir}
}

func (c *Client) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// RevParseShowTopLevel returns the absolute path of the git repository root.
func (c *Client) RevParseShowTopLevel() (string, error) {
	out, err := c.run("rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the name of the checked-out branch.
func (c *Client) CurrentBranch() (string, error) {
	out, err := c.run("branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ShortHeadAt returns the short commit hash checked out at path, or
// "unknown" if it cannot be determined.
func (c *Client) ShortHeadAt(path string) string {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--short", "HEAD")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// WorktreeAdd creates a new worktree at path. If newBranch is non-empty, a
// new branch by that name is created (from base, if given). Otherwise
// branch names an existing branch (or revision) to check out.
func (c *Client) WorktreeAdd(path, branch, newBranch, base string, force bool) error {
	args := []string{"worktree", "add"}
	if force {
		args = append(args, "--force")
	}
	if newBranch != "" {
		args = append(args, "-b", newBranch, path)
		if base != "" {
			args = append(args, base)
		}
	} else {
		args = append(args, path, branch)
	}
	_, err := c.run(args...)
	return err
}

// WorktreeRemove removes the worktree at path.
func (c *Client) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := c.run(args...)
	return err
}

// BranchDeleteForce force-deletes a local branch.
func (c *Client) BranchDeleteForce(branch string) error {
	_, err := c.run("branch", "-D", branch)
	return err
}

// WorktreeRecord is one entry from `git worktree list --porcelain`.
type WorktreeRecord struct {
	Path   string
	Branch string
}

// WorktreeListPorcelain runs and parses `git worktree list --porcelain`.
// Records are separated by blank lines; the first record is the main
// worktree, per convention.
func (c *Client) WorktreeListPorcelain() ([]WorktreeRecord, error) {
	out, err := c.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeListPorcelain(out), nil
}

// ParseWorktreeListPorcelain parses the porcelain format in isolation so it
// can be unit tested without invoking git.
func ParseWorktreeListPorcelain(out string) []WorktreeRecord {
	var records []WorktreeRecord
	var cur WorktreeRecord
	flush := func() {
		if cur.Path != "" {
			records = append(records, cur)
		}
		cur = WorktreeRecord{}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			cur.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()
	return records
}
