// Package retry implements a plain per-task retry counter, consulted by the
// WorkflowDriver when deciding whether a failed task gets a replacement or
// is left Failed.
package retry

import (
	"sync"

	"github.com/zen-cli/zen/dag"
)

// Tracker is a mapping TaskID -> non-negative retry count. Safe for
// concurrent use.
type Tracker struct {
	mu     sync.Mutex
	counts map[dag.TaskID]int
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{counts: make(map[dag.TaskID]int)}
}

// GetRetries returns the current retry count for id, 0 if unknown.
func (t *Tracker) GetRetries(id dag.TaskID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[id]
}

// Increment bumps id's retry count by one and returns the new value.
func (t *Tracker) Increment(id dag.TaskID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[id]++
	return t.counts[id]
}

// Reset zeroes id's retry count, typically called on task success.
func (t *Tracker) Reset(id dag.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, id)
}

// Clear drops every tracked task, used when a workflow run ends.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[dag.TaskID]int)
}
