// Package workflow implements WorkflowDriver, the top-level coordinator that
// drives a single workflow through its phase machine (Planning ->
// TaskGeneration -> Implementation -> Merging -> Documentation -> Complete),
// bridging planning/task-generation agent output into a TaskDAG and wiring
// the Scheduler, HealthMonitor, RetryTracker and ConflictResolver together.
// It is the only component holding capabilities to all three event-emitting
// components (per the "no cyclic back-pointers" redesign flag); everything
// else communicates only through event channels.
package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/zen-cli/zen/merge"
)

// ID is a workflow's opaque 128-bit identity.
type ID uuid.UUID

// NewID allocates a fresh workflow ID.
func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// Phase is a workflow's current position in its phase machine. Phases
// advance monotonically; the driver never moves a workflow backward.
type Phase int

const (
	Planning Phase = iota
	TaskGeneration
	Implementation
	Merging
	Documentation
	Complete
)

func (p Phase) String() string {
	switch p {
	case Planning:
		return "Planning"
	case TaskGeneration:
		return "TaskGeneration"
	case Implementation:
		return "Implementation"
	case Merging:
		return "Merging"
	case Documentation:
		return "Documentation"
	case Complete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Status is a workflow's overall lifecycle state.
type Status int

const (
	Pending Status = iota
	Running
	Paused
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Workflow is the in-memory record mutated exclusively by Driver. Its
// TaskDAG is held by Driver directly; Workflow carries the rest of the
// data-model fields from spec §3.
type Workflow struct {
	ID         ID
	Status     Status
	Phase      Phase
	Prompt     string
	BaseCommit string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// PlanningOutput is the raw text produced by the planning agent, fed as
	// input to the task-generation agent.
	PlanningOutput string
	// StagingCommit is the latest commit on the merge staging branch.
	StagingCommit string
	// PendingConflicts is populated when the workflow pauses mid-merge.
	PendingConflicts []merge.ConflictFile
}

// NewWorkflow creates a Pending workflow for prompt, rooted at baseCommit.
func NewWorkflow(prompt, baseCommit string) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:         NewID(),
		Status:     Pending,
		Phase:      Planning,
		Prompt:     prompt,
		BaseCommit: baseCommit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EventType enumerates the driver's own terminal/phase event stream.
type EventType int

const (
	PhaseAdvanced EventType = iota
	WorkflowPaused
	WorkflowCompleted
	WorkflowFailed
)

func (t EventType) String() string {
	switch t {
	case PhaseAdvanced:
		return "PhaseAdvanced"
	case WorkflowPaused:
		return "WorkflowPaused"
	case WorkflowCompleted:
		return "WorkflowCompleted"
	case WorkflowFailed:
		return "WorkflowFailed"
	default:
		return "Unknown"
	}
}

// Event reports a workflow-level transition to external observers (the
// CLI's event loop, the TUI).
type Event struct {
	Type  EventType
	Phase Phase
	Err   error
}
