package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shuntksh/openturbo/internal/workflow"
	"github.com/stretchr/testify/assert"
)

// fakeFileWriter satisfies terminal.FileWriter over a plain buffer so the
// renderer's TTY redraw path (which type-asserts io.Writer to FileWriter
// before issuing cursor movement) is actually exercised in tests.
type fakeFileWriter struct {
	*bytes.Buffer
}

func (f *fakeFileWriter) Fd() uintptr { return 0 }

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ms", FormatDuration(500))
	assert.Equal(t, "1.50s", FormatDuration(1500))
}

func TestRendererNonTTYInitialRenderOnly(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)
	r.AddStep("lint")
	r.UpdateStep("lint", workflow.StatusRunning, 0)
	r.UpdateStep("lint", workflow.StatusDone, 120)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "lint"))
	assert.Contains(t, out, "◐")
}

func TestRendererIconsReflectStatus(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)
	r.AddStep("build")
	r.UpdateStep("build", workflow.StatusFailed, 50)
	assert.Contains(t, buf.String(), "✗")
}

func TestRendererTTYRedrawShrinkMovesCursorBackUp(t *testing.T) {
	buf := &fakeFileWriter{Buffer: &bytes.Buffer{}}
	r := New(buf, true)

	r.AddStep("build")
	r.UpdateStep("build", workflow.StatusRunning, 0)
	r.RegisterTask("build", "pkg#compile")
	r.SetTaskRunning("build", "pkg#compile")

	// Frame with the nested line showing is 2 lines; lastLineCont must
	// reflect that before the shrink below.
	assert.Equal(t, 2, r.lastLineCont)

	// Step finishing collapses showNested, shrinking the frame back to 1
	// line; redraw must blank the vacated line and move the cursor back up
	// rather than leaving it parked below the blanked line.
	r.SetTaskDone("build", "pkg#compile", true, 5)
	r.UpdateStep("build", workflow.StatusDone, 120)

	assert.Equal(t, 1, r.lastLineCont)
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestNestedTaskLifecycle(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)
	r.AddStep("test")
	r.RegisterTask("test", "pkg#test")
	r.SetTaskRunning("test", "pkg#test")
	r.SetTaskDone("test", "pkg#test", true, 42)
	assert.Contains(t, buf.String(), "pkg#test")
}
