package workflow

import "time"

// Record is the JSON-serializable snapshot of a Workflow plus its embedded
// TaskDAG, persisted under refs/zen/workflows/<id> via the store package.
// dag.TaskDAG keeps its tasks and edges in unexported, mutex-guarded fields
// that encoding/json does not see, so Record is the wire shape instead.
type Record struct {
	ID            string
	Status        string
	Phase         string
	Prompt        string
	BaseCommit    string
	StagingCommit string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Tasks         []TaskRecord
	Edges         []EdgeRecord
	FailedTaskIDs []string

	PendingConflicts []ConflictRecord
}

// TaskRecord mirrors dag.Task with string-encoded ids.
type TaskRecord struct {
	ID           string
	Name         string
	Description  string
	Status       string
	AgentID      string
	ResultCommit string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}

// EdgeRecord mirrors dag.Edge with string-encoded ids.
type EdgeRecord struct {
	From string
	To   string
	Kind string
}

// ConflictRecord mirrors merge.ConflictFile with string content, suitable
// for JSON storage and for rendering in the (out of scope) UI.
type ConflictRecord struct {
	Path   string
	Ours   string
	Theirs string
	Base   string
}
