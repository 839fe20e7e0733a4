// Package scheduler dispatches ready tasks from a TaskDAG onto an AgentPool,
// consumes completion/failure, and emits a typed event stream. It enforces
// DAG order; the pool enforces the concurrency bound.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zen-cli/zen/agentpool"
	"github.com/zen-cli/zen/dag"
	"github.com/zen-cli/zen/zenerr"
	"github.com/zen-cli/zen/zenlog"
)

// codeAssistSkill is the skill template used for every task dispatched
// during the Implementation phase (see workflow.Driver).
const codeAssistSkill = "code-assist"

// Worktrees is the subset of the WorktreeProvisioner capability the
// scheduler needs to stand up a workspace before spawning an agent.
type Worktrees interface {
	Create(ctx context.Context, taskID dag.TaskID, baseCommit string) (workspace string, err error)
}

// EventType enumerates the scheduler's single event enum.
type EventType int

const (
	TaskStarted EventType = iota
	TaskCompleted
	TaskFailed
	ProgressUpdate
	AllTasksComplete
)

func (t EventType) String() string {
	switch t {
	case TaskStarted:
		return "TaskStarted"
	case TaskCompleted:
		return "TaskCompleted"
	case TaskFailed:
		return "TaskFailed"
	case ProgressUpdate:
		return "ProgressUpdate"
	case AllTasksComplete:
		return "AllTasksComplete"
	default:
		return "Unknown"
	}
}

// Event is the scheduler's single outbound event type.
type Event struct {
	Type    EventType
	TaskID  dag.TaskID
	AgentID agentpool.AgentID
	Commit  string
	Err     error
	Done    int
	Total   int
}

// Scheduler consumes a TaskDAG and AgentPool, dispatching ready tasks and
// tracking active/completed/failed sets for one workflow run.
type Scheduler struct {
	mu sync.Mutex

	graph      *dag.TaskDAG
	pool       *agentpool.Pool
	worktrees  Worktrees
	baseCommit string

	active    map[agentpool.AgentID]dag.TaskID
	completed map[dag.TaskID]bool
	failed    map[dag.TaskID]bool

	events chan Event
}

// New creates a Scheduler bound to graph and pool. worktrees provisions a
// workspace for each dispatched task, rooted at baseCommit.
func New(graph *dag.TaskDAG, pool *agentpool.Pool, worktrees Worktrees, baseCommit string, eventBuffer int) *Scheduler {
	return &Scheduler{
		graph:      graph,
		pool:       pool,
		worktrees:  worktrees,
		baseCommit: baseCommit,
		active:     make(map[agentpool.AgentID]dag.TaskID),
		completed:  make(map[dag.TaskID]bool),
		failed:     make(map[dag.TaskID]bool),
		events:     make(chan Event, eventBuffer),
	}
}

// Events returns the scheduler's outbound event channel.
func (s *Scheduler) Events() <-chan Event { return s.events }

// DispatchReadyTasks computes the ready set, excludes anything already
// active/completed/failed, and spawns up to the pool's remaining capacity in
// ready-set iteration order. Capacity exhaustion is not an error; it returns
// the partial count actually dispatched.
func (s *Scheduler) DispatchReadyTasks(ctx context.Context) (int, error) {
	s.mu.Lock()
	completedSnapshot := make(map[dag.TaskID]bool, len(s.completed))
	for id := range s.completed {
		completedSnapshot[id] = true
	}
	inFlight := make(map[dag.TaskID]bool, len(s.active)+len(s.failed))
	for _, taskID := range s.active {
		inFlight[taskID] = true
	}
	for id := range s.failed {
		inFlight[id] = true
	}
	s.mu.Unlock()

	ready := s.graph.ReadyTasks(completedSnapshot)

	dispatched := 0
	for _, t := range ready {
		if inFlight[t.ID] || completedSnapshot[t.ID] {
			continue
		}

		workspace, err := s.worktrees.Create(ctx, t.ID, s.baseCommit)
		if err != nil {
			zenlog.ErrorLog.Printf("provision worktree for task %s: %v", t.ID, err)
			continue
		}

		agentID, err := s.pool.Spawn(ctx, t.ID, codeAssistSkill, workspace, t.Description)
		if err != nil {
			if zenerr.Is(err, zenerr.CapacityExceeded) {
				break
			}
			zenlog.ErrorLog.Printf("spawn agent for task %s: %v", t.ID, err)
			continue
		}

		if err := s.graph.MarkRunning(t.ID, uuid.UUID(agentID), time.Now()); err != nil {
			zenlog.ErrorLog.Printf("mark task %s running: %v", t.ID, err)
		}

		s.mu.Lock()
		s.active[agentID] = t.ID
		s.mu.Unlock()

		s.publish(Event{Type: TaskStarted, TaskID: t.ID, AgentID: agentID})
		dispatched++
	}

	return dispatched, nil
}

// HandleCompletion records a successful task outcome and, after publishing
// progress, immediately re-dispatches to unblock successors.
func (s *Scheduler) HandleCompletion(ctx context.Context, agentID agentpool.AgentID, commitID string) error {
	s.mu.Lock()
	taskID, ok := s.active[agentID]
	if !ok {
		s.mu.Unlock()
		return zenerr.New(zenerr.UnknownAgent, "scheduler.HandleCompletion", fmt.Errorf("agent %s not active", agentID))
	}
	delete(s.active, agentID)
	s.completed[taskID] = true
	s.mu.Unlock()

	if err := s.graph.MarkCompleted(taskID, commitID, time.Now()); err != nil {
		zenlog.ErrorLog.Printf("mark task %s completed: %v", taskID, err)
	}

	s.publish(Event{Type: TaskCompleted, TaskID: taskID, AgentID: agentID, Commit: commitID})

	done, total := s.progressCounts()
	s.publish(Event{Type: ProgressUpdate, Done: done, Total: total})

	if _, err := s.DispatchReadyTasks(ctx); err != nil {
		zenlog.ErrorLog.Printf("dispatch after completion of %s: %v", taskID, err)
	}

	if s.AllComplete() {
		s.publish(Event{Type: AllTasksComplete})
	}
	return nil
}

// HandleFailure records a failed task outcome. Successors of a failed task
// are never dispatched; they remain Blocked until the WorkflowDriver
// re-inserts a replacement (see dag.ReplaceForRetry).
func (s *Scheduler) HandleFailure(agentID agentpool.AgentID, taskErr error) error {
	s.mu.Lock()
	taskID, ok := s.active[agentID]
	if !ok {
		s.mu.Unlock()
		return zenerr.New(zenerr.UnknownAgent, "scheduler.HandleFailure", fmt.Errorf("agent %s not active", agentID))
	}
	delete(s.active, agentID)
	s.failed[taskID] = true
	s.mu.Unlock()

	if err := s.graph.MarkFailed(taskID, time.Now()); err != nil {
		zenlog.ErrorLog.Printf("mark task %s failed: %v", taskID, err)
	}

	s.publish(Event{Type: TaskFailed, TaskID: taskID, AgentID: agentID, Err: taskErr})

	if s.AllComplete() {
		s.publish(Event{Type: AllTasksComplete})
	}
	return nil
}

// GetReadyTasks returns the ids currently ready to dispatch, filtered
// against active/completed/failed.
func (s *Scheduler) GetReadyTasks() []dag.TaskID {
	s.mu.Lock()
	completedSnapshot := make(map[dag.TaskID]bool, len(s.completed))
	for id := range s.completed {
		completedSnapshot[id] = true
	}
	inFlight := make(map[dag.TaskID]bool, len(s.active)+len(s.failed))
	for _, taskID := range s.active {
		inFlight[taskID] = true
	}
	for id := range s.failed {
		inFlight[id] = true
	}
	s.mu.Unlock()

	var out []dag.TaskID
	for _, t := range s.graph.ReadyTasks(completedSnapshot) {
		if !inFlight[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}

// AllComplete reports whether every task is in completed ∪ failed. An empty
// DAG is trivially complete.
func (s *Scheduler) AllComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)+len(s.failed) >= s.graph.TaskCount()
}

// ProgressPercentage returns floor(100 * |completed| / max(1,total)).
func (s *Scheduler) ProgressPercentage() int {
	done, total := s.progressCounts()
	if total == 0 {
		total = 1
	}
	return (100 * done) / total
}

func (s *Scheduler) progressCounts() (done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), s.graph.TaskCount()
}

// CompletedCount and FailedTaskIDs support WorkflowDriver bookkeeping.
func (s *Scheduler) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *Scheduler) FailedTaskIDs() []dag.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dag.TaskID, 0, len(s.failed))
	for id := range s.failed {
		out = append(out, id)
	}
	return out
}

// ActiveAgents returns a snapshot of agent -> task assignments, used by the
// WorkflowDriver to drain agents on cancellation.
func (s *Scheduler) ActiveAgents() map[agentpool.AgentID]dag.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[agentpool.AgentID]dag.TaskID, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}

// Seed pre-populates the completed/failed tracking sets from a rehydrated
// TaskDAG (see workflow.Resume), whose task Status fields already reflect a
// prior run's outcome. Must be called before the first DispatchReadyTasks.
func (s *Scheduler) Seed(completedIDs, failedIDs []dag.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range completedIDs {
		s.completed[id] = true
	}
	for _, id := range failedIDs {
		s.failed[id] = true
	}
}

// ReinsertReplacement clears a task's failed-terminal state so it can be
// redispatched under the same TaskID. Called by WorkflowDriver under retry.
func (s *Scheduler) ReinsertReplacement(taskID dag.TaskID) error {
	s.mu.Lock()
	delete(s.failed, taskID)
	s.mu.Unlock()
	return s.graph.ReplaceForRetry(taskID)
}

func (s *Scheduler) publish(ev Event) {
	structural := ev.Type != ProgressUpdate
	if structural {
		select {
		case s.events <- ev:
		case <-time.After(5 * time.Second):
			zenlog.WarningLog.Printf("scheduler event channel stalled delivering structural event %s", ev.Type)
		}
		return
	}
	select {
	case s.events <- ev:
	default:
		zenlog.WarningLog.Printf("scheduler event channel full, dropping progress update")
	}
}
