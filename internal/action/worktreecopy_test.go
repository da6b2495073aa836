package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWorktreeCopy(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0o644))

	worktrees := []*workflow.WorktreeInfo{
		{Path: src, Branch: "feature-x"},
		{Path: dest, Branch: "main", IsMain: true},
	}

	action := &workflow.WorktreeCp{From: "worktree:feature-x", Files: []string{"*.txt"}}
	result := ExecuteWorktreeCopy(action, worktrees, dest)
	require.True(t, result.Success)

	contents, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(contents))
}

func TestExecuteWorktreeCopyMissingUnknownWorktree(t *testing.T) {
	dest := t.TempDir()
	action := &workflow.WorktreeCp{From: "worktree:nope", Files: []string{"*.txt"}}
	result := ExecuteWorktreeCopy(action, nil, dest)
	assert.False(t, result.Success)
}

func TestExecuteWorktreeCopyAllowMissing(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	worktrees := []*workflow.WorktreeInfo{{Path: src, Branch: "feature-x"}}
	action := &workflow.WorktreeCp{From: "worktree:feature-x", Files: []string{"*.missing"}, AllowMissing: true}
	result := ExecuteWorktreeCopy(action, worktrees, dest)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "skip")
}
