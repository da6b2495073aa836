package process

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// capturedOutput is a race-safe combined stdout/stderr sink. Writes may come
// concurrently from the child's stdout and stderr pipes.
type capturedOutput struct {
	mu  sync.Mutex
	buf bytes.Buffer
	tee io.Writer // non-nil in verbose mode: echoed to as writes arrive
}

func (c *capturedOutput) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.buf.Write(p)
	if c.tee != nil {
		_, _ = c.tee.Write(p)
	}
	return n, err
}

func (c *capturedOutput) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// CaptureResult is the outcome of RunCaptured.
type CaptureResult struct {
	Output   string
	ExitCode int
	TimedOut bool
}

// RunCaptured runs cmd to completion as a managed Child, capturing combined
// stdout/stderr into a single race-safe buffer. If verbose is true, output
// is also echoed to os.Stdout as it arrives. If timeout is non-zero and
// exceeded, or ctx is canceled, the whole process group is signaled and
// force-killed.
//
// If mgr is non-nil, the child is registered with it for the duration of
// the run, so a concurrent mgr.Close (e.g. on SIGINT) stops this child
// along with every other process it tracks. mgr may be nil, in which case
// the child is only subject to timeout/ctx cancellation.
func RunCaptured(ctx context.Context, cmd *exec.Cmd, timeout time.Duration, verbose bool, mgr *Manager) (*CaptureResult, error) {
	out := &capturedOutput{}
	if verbose {
		out.tee = os.Stdout
	}
	cmd.Stdout = out
	cmd.Stderr = out

	child, err := newChild(NewInput{
		Cmd:         cmd,
		KillSignal:  os.Interrupt,
		KillTimeout: 5 * time.Second,
		Logger:      hclog.NewNullLogger(),
	})
	if err != nil {
		return &CaptureResult{Output: out.String()}, err
	}

	if mgr != nil {
		if !mgr.Track(child) {
			return &CaptureResult{Output: out.String(), ExitCode: ExitCodeError}, ErrClosing
		}
		defer mgr.Untrack(child)
	}

	if err := child.Start(); err != nil {
		return &CaptureResult{Output: out.String(), ExitCode: ExitCodeError}, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case code, ok := <-child.ExitCh():
		if !ok {
			return &CaptureResult{Output: out.String(), ExitCode: ExitCodeError}, ErrClosing
		}
		return &CaptureResult{Output: out.String(), ExitCode: code}, nil
	case <-timeoutCh:
		child.Kill()
		return &CaptureResult{Output: out.String(), ExitCode: ExitCodeError, TimedOut: true}, nil
	case <-ctx.Done():
		child.Kill()
		return &CaptureResult{Output: out.String(), ExitCode: ExitCodeError}, ctx.Err()
	}
}
