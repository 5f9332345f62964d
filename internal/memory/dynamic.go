package memory

import (
	"sync"
	"time"
)

const maxErrorWindow = 10

// Dynamic wraps DynamicContext (L3): an explicit task stack, a list of
// pending decisions awaiting resolution, and a rolling window of the most
// recent errors.
type Dynamic struct {
	mu   sync.RWMutex
	data DynamicContext
}

// NewDynamic returns an empty L3 context.
func NewDynamic() *Dynamic {
	return &Dynamic{}
}

// PushTask pushes a new frame onto the task stack.
func (d *Dynamic) PushTask(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.taskStack = append(d.data.taskStack, TaskFrame{Name: name, StartedAt: time.Now()})
}

// PopTask pops the top frame off the task stack. Returns ("", false) if the
// stack is empty.
func (d *Dynamic) PopTask() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.data.taskStack) == 0 {
		return "", false
	}
	top := d.data.taskStack[len(d.data.taskStack)-1]
	d.data.taskStack = d.data.taskStack[:len(d.data.taskStack)-1]
	return top.Name, true
}

// CurrentTask returns the top-of-stack task name, or "" if the stack is empty.
func (d *Dynamic) CurrentTask() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data.CurrentTask()
}

// TaskDepth returns the number of frames on the task stack.
func (d *Dynamic) TaskDepth() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data.taskStack)
}

// AddPendingDecision appends a decision awaiting resolution.
func (d *Dynamic) AddPendingDecision(dec Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dec.Timestamp.IsZero() {
		dec.Timestamp = time.Now()
	}
	d.data.PendingDecisions = append(d.data.PendingDecisions, dec)
}

// ResolvePendingDecision removes the pending decision at index i.
func (d *Dynamic) ResolvePendingDecision(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.data.PendingDecisions) {
		return false
	}
	d.data.PendingDecisions = append(d.data.PendingDecisions[:i], d.data.PendingDecisions[i+1:]...)
	return true
}

// RecordError appends an error to the rolling window, evicting the oldest
// entry beyond maxErrorWindow.
func (d *Dynamic) RecordError(e ErrorEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	d.data.ErrorContext = append(d.data.ErrorContext, e)
	if excess := len(d.data.ErrorContext) - maxErrorWindow; excess > 0 {
		d.data.ErrorContext = d.data.ErrorContext[excess:]
	}
}

// Snapshot returns a copy of the current L3 state.
func (d *Dynamic) Snapshot() DynamicContext {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cp := d.data
	cp.PendingDecisions = make([]Decision, len(d.data.PendingDecisions))
	copy(cp.PendingDecisions, d.data.PendingDecisions)
	cp.ErrorContext = make([]ErrorEntry, len(d.data.ErrorContext))
	copy(cp.ErrorContext, d.data.ErrorContext)
	cp.taskStack = make([]TaskFrame, len(d.data.taskStack))
	copy(cp.taskStack, d.data.taskStack)
	return cp
}
