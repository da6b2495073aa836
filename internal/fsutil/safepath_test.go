package fsutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithinRootRejectsTraversal(t *testing.T) {
	_, err := WithinRoot("/repo", "../../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestWithinRootAllowsNested(t *testing.T) {
	p, err := WithinRoot("/repo", "sub/dir/file.txt")
	assert.NoError(t, err)
	assert.Equal(t, "/repo/sub/dir/file.txt", p)
}
