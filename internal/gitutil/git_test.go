package gitutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWorktreeListPorcelainMainFirst(t *testing.T) {
	out := "worktree /repo\nHEAD abc123\nbranch refs/heads/main\n\n" +
		"worktree /repo/../worktrees/feature-x\nHEAD def456\nbranch refs/heads/feature-x\n"

	records := ParseWorktreeListPorcelain(out)
	assert.Len(t, records, 2)
	assert.Equal(t, "/repo", records[0].Path)
	assert.Equal(t, "main", records[0].Branch)
	assert.Equal(t, "feature-x", records[1].Branch)
}

func TestParseWorktreeListPorcelainDetachedHead(t *testing.T) {
	out := "worktree /repo\nHEAD abc123\ndetached\n"
	records := ParseWorktreeListPorcelain(out)
	assert.Len(t, records, 1)
	assert.Equal(t, "", records[0].Branch)
}
