package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zen-cli/zen/dag"
	"github.com/zen-cli/zen/merge"
	"github.com/zen-cli/zen/scheduler"
	"github.com/zen-cli/zen/zenerr"
)

// LoadRecord reads the persisted Record for workflowID out of store, if any.
func LoadRecord(s Store, workflowID string) (Record, bool, error) {
	var rec Record
	ok, err := s.ReadRef("workflows/"+workflowID, &rec)
	if err != nil {
		return Record{}, false, err
	}
	return rec, ok, nil
}

// Resume rebuilds a Driver from a previously persisted Record, ready to have
// Run called again. Tasks left Running when the process last exited are
// reset to Pending (mirroring the teacher's Instance.Resume, which recreates
// the worktree and restarts the tmux session rather than trying to reattach
// to state that may no longer exist) so the scheduler dispatches them fresh.
// Only Paused or Failed workflows are resumable; Completed has nothing left
// to do, and Running/Pending indicate a Record written by a still-live
// process.
func Resume(cfg Config, rec Record) (*Driver, error) {
	if rec.Status != Paused.String() && rec.Status != Failed.String() {
		return nil, zenerr.New(zenerr.Other, "workflow.Resume",
			fmt.Errorf("workflow %s is %s, not resumable", rec.ID, rec.Status))
	}

	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, zenerr.New(zenerr.Other, "workflow.Resume", err)
	}

	graph := dag.New()
	idByName := make(map[string]dag.TaskID, len(rec.Tasks))
	for _, tr := range rec.Tasks {
		task, err := taskFromRecord(tr)
		if err != nil {
			return nil, zenerr.New(zenerr.Other, "workflow.Resume", err)
		}
		graph.AddTask(task)
		idByName[tr.Name] = task.ID
	}
	for _, er := range rec.Edges {
		from, err := parseTaskID(er.From)
		if err != nil {
			return nil, zenerr.New(zenerr.Other, "workflow.Resume", err)
		}
		to, err := parseTaskID(er.To)
		if err != nil {
			return nil, zenerr.New(zenerr.Other, "workflow.Resume", err)
		}
		if err := graph.AddDependency(from, to, kindFromString(er.Kind)); err != nil {
			return nil, zenerr.New(zenerr.Other, "workflow.Resume", err)
		}
	}

	// A task left Running when the Record was last written had its agent
	// process killed along with the prior run; give it a clean slate.
	for _, tr := range rec.Tasks {
		if tr.Status == dag.Running.String() {
			id := idByName[tr.Name]
			if err := graph.SetStatus(id, dag.Pending); err != nil {
				return nil, zenerr.New(zenerr.Other, "workflow.Resume", err)
			}
		}
	}

	wf := &Workflow{
		ID:         ID(id),
		Status:     Running,
		Phase:      phaseFromRecord(rec),
		Prompt:     rec.Prompt,
		BaseCommit: rec.BaseCommit,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  time.Now(),
	}
	if rec.StagingCommit != "" {
		wf.StagingCommit = rec.StagingCommit
	}
	for _, c := range rec.PendingConflicts {
		wf.PendingConflicts = append(wf.PendingConflicts, merge.ConflictFile{
			Path:   c.Path,
			Ours:   []byte(c.Ours),
			Theirs: []byte(c.Theirs),
			Base:   []byte(c.Base),
		})
	}

	cfg.Prompt = rec.Prompt
	cfg.BaseCommit = rec.BaseCommit
	sched := scheduler.New(graph, cfg.Pool, cfg.Worktrees, cfg.BaseCommit, 64)

	var completedIDs, failedIDs []dag.TaskID
	for _, tr := range rec.Tasks {
		switch tr.Status {
		case dag.Completed.String():
			completedIDs = append(completedIDs, idByName[tr.Name])
		case dag.Failed.String():
			failedIDs = append(failedIDs, idByName[tr.Name])
		}
	}
	sched.Seed(completedIDs, failedIDs)

	d := &Driver{
		cfg:       cfg,
		graph:     graph,
		scheduler: sched,
		wf:        wf,
		events:    make(chan Event, 4),
	}
	return d, nil
}

// phaseFromRecord resumes from the start of the phase the Record was
// paused/failed in; a Paused workflow always resumes at Merging (the only
// phase that pauses) and a Failed one retries the phase it failed in,
// since failure there means that phase's work never completed.
func phaseFromRecord(rec Record) Phase {
	switch rec.Phase {
	case Planning.String():
		return Planning
	case TaskGeneration.String():
		return TaskGeneration
	case Implementation.String():
		return Implementation
	case Merging.String():
		return Merging
	case Documentation.String():
		return Documentation
	default:
		return Planning
	}
}

func taskFromRecord(tr TaskRecord) (*dag.Task, error) {
	id, err := parseTaskID(tr.ID)
	if err != nil {
		return nil, err
	}
	t := &dag.Task{
		ID:           id,
		Name:         tr.Name,
		Description:  tr.Description,
		Status:       statusFromString(tr.Status),
		ResultCommit: tr.ResultCommit,
		CreatedAt:    tr.CreatedAt,
		StartedAt:    tr.StartedAt,
		EndedAt:      tr.EndedAt,
	}
	if tr.AgentID != "" {
		aid, err := uuid.Parse(tr.AgentID)
		if err == nil {
			t.AgentID = &aid
		}
	}
	return t, nil
}

func parseTaskID(s string) (dag.TaskID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return dag.TaskID{}, err
	}
	return dag.TaskID(u), nil
}

func statusFromString(s string) dag.Status {
	switch s {
	case dag.Pending.String():
		return dag.Pending
	case dag.Ready.String():
		return dag.Ready
	case dag.Running.String():
		return dag.Running
	case dag.Completed.String():
		return dag.Completed
	case dag.Failed.String():
		return dag.Failed
	case dag.Blocked.String():
		return dag.Blocked
	default:
		return dag.Pending
	}
}

func kindFromString(s string) dag.DependencyType {
	switch s {
	case dag.OrderDependency.String():
		return dag.OrderDependency
	case dag.ResourceDependency.String():
		return dag.ResourceDependency
	default:
		return dag.DataDependency
	}
}
