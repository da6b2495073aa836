// Package progress implements the differential TTY redraw of nested
// step/subtask trees.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/shuntksh/openturbo/internal/ui/term/cursor"
	"github.com/shuntksh/openturbo/internal/workflow"
)

const nameColumnWidth = 16

func icon(status workflow.Status) string {
	switch status {
	case workflow.StatusRunning:
		return "◐"
	case workflow.StatusDone:
		return "✓"
	case workflow.StatusFailed:
		return "✗"
	default:
		return "○"
	}
}

// FormatDuration renders sub-second durations as "%dms" and everything else
// as "%.2fs", the shared idiom used by both the renderer and the final
// summary line.
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000.0)
}

type nestedTask struct {
	id         string
	status     workflow.Status
	durationMs int64
}

type stepLine struct {
	name       string
	status     workflow.Status
	durationMs int64
	nested     []*nestedTask
	nestedIdx  map[string]int
	showNested bool
}

// Renderer keeps an ordered list of step lines and redraws them
// differentially on a TTY. It implements action.NestedTaskSink so the
// workspace-script executor can report per-task lifecycle events, and
// scheduler.Renderer so the scheduler can report per-step transitions.
type Renderer struct {
	mu           sync.Mutex
	out          io.Writer
	isTTY        bool
	order        []string
	steps        map[string]*stepLine
	initialDone  bool
	lastLineCont int
	cur          *cursor.Cursor
}

// New creates a Renderer writing to out. isTTY controls whether frames are
// redrawn in place (TTY) or only the first frame is printed (non-TTY).
func New(out io.Writer, isTTY bool) *Renderer {
	return &Renderer{out: out, isTTY: isTTY, steps: make(map[string]*stepLine), cur: cursor.New()}
}

// NewForStdout creates a Renderer wired to os.Stdout; the caller supplies
// whether stdout is a TTY.
func NewForStdout(isTTY bool) *Renderer {
	return New(os.Stdout, isTTY)
}

// AddStep registers a step in declaration order, initially pending.
func (r *Renderer) AddStep(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.steps[name]; ok {
		return
	}
	r.order = append(r.order, name)
	r.steps[name] = &stepLine{name: name, status: workflow.StatusPending, nestedIdx: make(map[string]int)}
}

// UpdateStep implements scheduler.Renderer.
func (r *Renderer) UpdateStep(name string, status workflow.Status, durationMs int64) {
	r.mu.Lock()
	st, ok := r.steps[name]
	if !ok {
		st = &stepLine{name: name, nestedIdx: make(map[string]int)}
		r.steps[name] = st
		r.order = append(r.order, name)
	}
	st.status = status
	st.durationMs = durationMs
	if status == workflow.StatusDone || status == workflow.StatusFailed {
		st.showNested = false
	}
	r.mu.Unlock()
	r.redraw()
}

// RegisterTask implements action.NestedTaskSink.
func (r *Renderer) RegisterTask(stepName, taskID string) {
	r.mu.Lock()
	st, ok := r.steps[stepName]
	if ok {
		st.nested = append(st.nested, &nestedTask{id: taskID, status: workflow.StatusPending})
		st.nestedIdx[taskID] = len(st.nested) - 1
		st.showNested = true
	}
	r.mu.Unlock()
	r.redraw()
}

// SetTaskRunning implements action.NestedTaskSink.
func (r *Renderer) SetTaskRunning(stepName, taskID string) {
	r.updateTask(stepName, taskID, workflow.StatusRunning, 0)
}

// SetTaskDone implements action.NestedTaskSink.
func (r *Renderer) SetTaskDone(stepName, taskID string, success bool, durationMs int64) {
	status := workflow.StatusDone
	if !success {
		status = workflow.StatusFailed
	}
	r.updateTask(stepName, taskID, status, durationMs)
}

func (r *Renderer) updateTask(stepName, taskID string, status workflow.Status, durationMs int64) {
	r.mu.Lock()
	st, ok := r.steps[stepName]
	if ok {
		if idx, ok := st.nestedIdx[taskID]; ok {
			st.nested[idx].status = status
			st.nested[idx].durationMs = durationMs
		}
	}
	r.mu.Unlock()
	r.redraw()
}

func (r *Renderer) buildLines() []string {
	var lines []string
	for _, name := range r.order {
		st := r.steps[name]
		lines = append(lines, formatStepLine(st))
		if st.showNested {
			for _, nt := range st.nested {
				lines = append(lines, formatNestedLine(nt))
			}
		}
	}
	return lines
}

func formatStepLine(st *stepLine) string {
	name := st.name
	if len(name) < nameColumnWidth {
		name = name + strings.Repeat(" ", nameColumnWidth-len(name))
	}
	status := string(st.status)
	if st.status == workflow.StatusDone || st.status == workflow.StatusFailed {
		status = fmt.Sprintf("%s (%s)", st.status, FormatDuration(st.durationMs))
	}
	return fmt.Sprintf("%s %s %s", icon(st.status), name, status)
}

func formatNestedLine(nt *nestedTask) string {
	status := string(nt.status)
	if nt.status == workflow.StatusDone || nt.status == workflow.StatusFailed {
		status = fmt.Sprintf("%s (%s)", nt.status, FormatDuration(nt.durationMs))
	}
	return fmt.Sprintf("    %s %s %s", icon(nt.status), nt.id, status)
}

// redraw writes the current line set. In TTY mode it moves the cursor up
// over the last-rendered frame and rewrites every line in place; otherwise
// it is suppressed after the initial render.
func (r *Renderer) redraw() {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.buildLines()

	if !r.isTTY {
		if !r.initialDone {
			for _, l := range lines {
				fmt.Fprintln(r.out, l)
			}
			r.initialDone = true
		}
		return
	}

	fw, isFileWriter := r.out.(terminal.FileWriter)

	if !r.initialDone {
		_ = r.cur.Hide()
		for _, l := range lines {
			fmt.Fprintln(r.out, l)
		}
		r.initialDone = true
		r.lastLineCont = len(lines)
		return
	}

	if isFileWriter {
		cursor.EraseLinesAbove(fw, r.lastLineCont)
	}
	for _, l := range lines {
		fmt.Fprintln(r.out, l)
	}
	if len(lines) < r.lastLineCont {
		blanked := r.lastLineCont - len(lines)
		for i := 0; i < blanked; i++ {
			fmt.Fprintln(r.out)
		}
		if isFileWriter {
			cursor.MoveUp(fw, blanked)
		}
	}
	r.lastLineCont = len(lines)
}

// Close restores cursor visibility; safe to call unconditionally.
func (r *Renderer) Close() {
	if !r.isTTY {
		return
	}
	_ = r.cur.Show()
}
