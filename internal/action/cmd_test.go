package action

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExecuteCmdSuccess(t *testing.T) {
	r := ExecuteCmd(context.Background(), "echo hello", t.TempDir(), false)
	assert.True(t, r.Success)
	assert.Contains(t, r.Output, "hello")
}

func TestExecuteCmdFailure(t *testing.T) {
	r := ExecuteCmd(context.Background(), "exit 1", t.TempDir(), false)
	assert.False(t, r.Success)
}

func TestExecuteCmdTimeout(t *testing.T) {
	cmd := shellCommand("sleep 5")
	cmd.Dir = t.TempDir()
	r := ExecuteCmdWithTimeout(context.Background(), cmd, 50*time.Millisecond, false)
	assert.False(t, r.Success)
	assert.Contains(t, r.Output, "Timeout")
}
