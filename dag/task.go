// Package dag implements the task DAG: a typed task record plus a directed
// acyclic dependency graph with cycle prevention and ready-set computation.
package dag

import (
	"time"

	"github.com/google/uuid"
)

// TaskID is an opaque identity for a Task.
type TaskID uuid.UUID

// NewTaskID allocates a fresh TaskID.
func NewTaskID() TaskID { return TaskID(uuid.New()) }

// String returns the canonical UUID form.
func (id TaskID) String() string { return uuid.UUID(id).String() }

// Short returns the 8-character display form used for worktree/branch names.
func (id TaskID) Short() string {
	s := uuid.UUID(id).String()
	compact := ""
	for _, r := range s {
		if r != '-' {
			compact += string(r)
		}
		if len(compact) == 8 {
			break
		}
	}
	return compact
}

// Status is the lifecycle state of a Task.
type Status int

const (
	Pending Status = iota
	Ready
	Running
	Completed
	Failed
	Blocked
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Blocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// terminal reports whether a task in this status can no longer be dispatched
// or re-dispatched by the scheduler.
func (s Status) terminal() bool {
	return s == Running || s == Completed || s == Failed
}

// DependencyType tags an edge between two tasks.
type DependencyType int

const (
	// DataDependency: producer/consumer of artifacts.
	DataDependency DependencyType = iota
	// OrderDependency: ordering only, no data relationship.
	OrderDependency
	// ResourceDependency: mutual exclusion on a named resource. Reserved for
	// future use; current scheduling treats it identically to DataDependency
	// (see Open Question (i) in DESIGN.md).
	ResourceDependency
)

func (d DependencyType) String() string {
	switch d {
	case DataDependency:
		return "DataDependency"
	case OrderDependency:
		return "OrderDependency"
	case ResourceDependency:
		return "ResourceDependency"
	default:
		return "Unknown"
	}
}

// Task is a single unit of work in a workflow's DAG.
type Task struct {
	ID          TaskID
	Name        string
	Description string
	Status      Status
	// AgentID is set while the task is Running (or after failure, to the
	// last agent that attempted it).
	AgentID *uuid.UUID
	// ResultCommit is set once the task completes successfully.
	ResultCommit string

	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

// NewTask creates a Task in Pending status.
func NewTask(name, description string) *Task {
	return &Task{
		ID:          NewTaskID(),
		Name:        name,
		Description: description,
		Status:      Pending,
		CreatedAt:   time.Now(),
	}
}

// clone returns a deep-enough copy for safe external reads.
func (t *Task) clone() *Task {
	cp := *t
	if t.AgentID != nil {
		id := *t.AgentID
		cp.AgentID = &id
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		cp.StartedAt = &s
	}
	if t.EndedAt != nil {
		e := *t.EndedAt
		cp.EndedAt = &e
	}
	return &cp
}
