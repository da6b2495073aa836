package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBranchPath(t *testing.T) {
	branch, path := splitBranchPath("feature-x@src/lib")
	assert.Equal(t, "feature-x", branch)
	assert.Equal(t, "src/lib", path)

	branch, path = splitBranchPath("src/lib")
	assert.Equal(t, "", branch)
	assert.Equal(t, "src/lib", path)
}

func TestHasGlobMeta(t *testing.T) {
	assert.True(t, hasGlobMeta("src/*.go"))
	assert.True(t, hasGlobMeta("src/file?.go"))
	assert.True(t, hasGlobMeta("src/[a-z].go"))
	assert.False(t, hasGlobMeta("src/file.go"))
}

func TestResolveWorktreeRootEmptyBranchIsGitRoot(t *testing.T) {
	root, err := resolveWorktreeRoot(nil, "", "/repo")
	assert.NoError(t, err)
	assert.Equal(t, "/repo", root)
}

func TestResolveWorktreeRootUnknownBranch(t *testing.T) {
	worktrees := []*workflow.WorktreeInfo{{Path: "/repo", Branch: "main", IsMain: true}}
	_, err := resolveWorktreeRoot(worktrees, "nope", "/repo")
	assert.Error(t, err)
}

func TestRelativeToGitRoot(t *testing.T) {
	assert.Equal(t, "pkg/a", relativeToGitRoot("/repo", "/repo/pkg", "a"))
	assert.Equal(t, "pkg/a", relativeToGitRoot("/repo", "/repo", "pkg/a"))
}

func initGitRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	cmd := exec.Command("git", "init")
	cmd.Dir = root
	require.NoError(t, cmd.Run())
	return root
}

func TestCopyRejectsSourcePathTraversal(t *testing.T) {
	gitRoot := initGitRepo(t)

	outsideDir := t.TempDir()
	secret := filepath.Join(outsideDir, "ot-traversal-secret")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))

	rel, err := filepath.Rel(gitRoot, secret)
	require.NoError(t, err)

	m := &Manager{GitRoot: gitRoot}
	err = m.Copy(rel, "passwd", gitRoot)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(gitRoot, "passwd"))
	assert.True(t, os.IsNotExist(statErr), "traversal copy must not write any file")
}

func TestCopyWithinRootSucceeds(t *testing.T) {
	gitRoot := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(gitRoot, "src.txt"), []byte("hello"), 0o644))

	m := &Manager{GitRoot: gitRoot}
	require.NoError(t, m.Copy("src.txt", "dest.txt", gitRoot))

	contents, err := os.ReadFile(filepath.Join(gitRoot, "dest.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(contents))
}
