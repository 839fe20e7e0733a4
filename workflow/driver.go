package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/zen-cli/zen/agentpool"
	"github.com/zen-cli/zen/dag"
	"github.com/zen-cli/zen/health"
	"github.com/zen-cli/zen/merge"
	"github.com/zen-cli/zen/retry"
	"github.com/zen-cli/zen/scheduler"
	"github.com/zen-cli/zen/zenerr"
	"github.com/zen-cli/zen/zenlog"
)

const (
	skillPlanning      = "planning"
	skillTaskGenerator = "task-generator"
	skillDocumentation = "documentation"

	// quiesceStableTicks is how many consecutive unchanged pane snapshots
	// are required before a single-agent phase (Planning/TaskGeneration/
	// Documentation) is considered finished producing output.
	quiesceStableTicks = 2
)

// Worktrees is the subset of the WorktreeProvisioner capability the driver
// needs directly: provisioning ad hoc single-agent workspaces (for the
// Planning/TaskGeneration/Documentation phases, which have no TaskDAG node
// of their own) and provisioning per-task workspaces for Implementation,
// which it shares with the Scheduler via scheduler.Worktrees.
type Worktrees interface {
	scheduler.Worktrees
}

// AgentWaiter reports whether an agent's output has stopped changing. It is
// the driver's only source of agent-completion signal: the agent process
// itself is opaque (§1 Non-goals), so a sustained lack of new output is
// treated as "this agent is done producing output," and the worktree's HEAD
// commit is consulted to tell a finished task from a merely quiet one.
type AgentWaiter interface {
	HasQuiesced(agentID agentpool.AgentID) (bool, error)
}

// Store is the subset of store.Store the driver needs to persist a
// Workflow's Record under its ref namespace.
type Store interface {
	CreateRef(name string, value any) error
	UpdateRef(name string, value any) error
	ReadRef(name string, dest any) (bool, error)
}

// Config bundles every capability and policy knob a Driver needs. All
// fields are required unless noted.
type Config struct {
	Prompt       string
	BaseCommit   string
	WorktreeRoot string // root dir worktrees are checked out under; must match the Worktrees implementation's own root.

	Pool      *agentpool.Pool
	Worktrees Worktrees
	Resolver  *merge.Resolver
	Monitor   *health.Monitor
	Retries   *retry.Tracker
	Store     Store
	Waiter    AgentWaiter

	MaxRetries        int
	PollInterval      time.Duration
	SkipDocumentation bool
}

// Driver coordinates one workflow's run through its phase machine. Each
// workflow gets its own Driver, TaskDAG and Scheduler. cmd/zen also gives
// each Driver its own RetryTracker and shares the AgentPool, HealthMonitor,
// ConflictResolver, Worktrees and Store across the concurrently-running
// Drivers of a session.
type Driver struct {
	cfg Config

	graph     *dag.TaskDAG
	scheduler *scheduler.Scheduler

	wf *Workflow

	events chan Event
}

// New creates a Driver for a fresh workflow described by cfg.
func New(cfg Config) *Driver {
	graph := dag.New()
	return &Driver{
		cfg:       cfg,
		graph:     graph,
		scheduler: scheduler.New(graph, cfg.Pool, cfg.Worktrees, cfg.BaseCommit, 64),
		wf:        NewWorkflow(cfg.Prompt, cfg.BaseCommit),
		events:    make(chan Event, 4),
	}
}

// Events returns the driver's outbound workflow-level event stream.
func (d *Driver) Events() <-chan Event { return d.events }

// Workflow returns a copy of the driver's current workflow record fields
// (not the TaskDAG, which stays internal). Used by the CLI and the TUI.
func (d *Driver) Workflow() Workflow { return *d.wf }

// Run drives the workflow through every phase in order, persisting state
// after each transition. It returns nil even when the workflow ends Failed
// or Paused; callers distinguish outcome via Workflow().Status, not the
// returned error, which is reserved for unrecoverable driver-level faults
// (e.g. the persistence layer itself failing).
func (d *Driver) Run(ctx context.Context) error {
	d.wf.Status = Running
	if err := d.persist(); err != nil {
		return err
	}

	steps := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{Planning, d.runPlanning},
		{TaskGeneration, d.runTaskGeneration},
		{Implementation, d.runImplementation},
		{Merging, d.runMerging},
	}

	// On a resumed workflow, wf.Phase was set by Resume to wherever the
	// persisted Record left off; skip the phases already behind it instead
	// of regenerating the plan/tasks from scratch.
	startPhase := d.wf.Phase

	for _, step := range steps {
		if step.phase < startPhase {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.wf.Phase = step.phase
		if err := step.run(ctx); err != nil {
			return d.failWith(err)
		}
		if d.wf.Status != Running {
			return d.finish()
		}
		d.publish(Event{Type: PhaseAdvanced, Phase: step.phase})
		if err := d.persist(); err != nil {
			return err
		}
	}

	if startPhase > Documentation {
		d.wf.Phase = Complete
		d.wf.Status = Completed
		return d.finish()
	}

	if !d.cfg.SkipDocumentation {
		d.wf.Phase = Documentation
		if err := d.runDocumentation(ctx); err != nil {
			zenlog.WarningLog.Printf("workflow %s: documentation phase failed, continuing: %v", d.wf.ID, err)
		}
	}

	d.wf.Phase = Complete
	d.wf.Status = Completed
	return d.finish()
}

func (d *Driver) failWith(err error) error {
	d.wf.Status = Failed
	zenlog.ErrorLog.Printf("workflow %s: %v", d.wf.ID, err)
	return d.finish()
}

func (d *Driver) finish() error {
	if perr := d.persist(); perr != nil {
		return perr
	}
	switch d.wf.Status {
	case Paused:
		d.publish(Event{Type: WorkflowPaused, Phase: d.wf.Phase})
	case Completed:
		d.publish(Event{Type: WorkflowCompleted, Phase: d.wf.Phase})
	case Failed:
		d.publish(Event{Type: WorkflowFailed, Phase: d.wf.Phase})
	}
	return nil
}

func (d *Driver) publish(ev Event) {
	select {
	case d.events <- ev:
	default:
		zenlog.WarningLog.Printf("workflow %s: event channel full, dropping %s", d.wf.ID, ev.Type)
	}
}

// --- Planning -----------------------------------------------------------

func (d *Driver) runPlanning(ctx context.Context) error {
	output, err := d.runSingleAgent(ctx, skillPlanning, planningPrompt(d.wf.Prompt))
	if err != nil {
		return err
	}
	d.wf.PlanningOutput = output
	if err := d.cfg.Store.CreateRef(d.refName("planning-output"), output); err != nil && zenerr.KindOf(err) != zenerr.RefExists {
		return err
	}
	return nil
}

// --- TaskGeneration -------------------------------------------------------

func (d *Driver) runTaskGeneration(ctx context.Context) error {
	output, err := d.runSingleAgent(ctx, skillTaskGenerator, taskGenerationPrompt(d.wf.PlanningOutput))
	if err != nil {
		return err
	}

	specs := parseTaskSpecs(output)
	if len(specs) == 0 {
		specs = []taskSpec{{Name: "main-task", Description: d.wf.Prompt}}
	}

	byName := make(map[string]dag.TaskID, len(specs))
	for _, spec := range specs {
		t := dag.NewTask(spec.Name, spec.Description)
		d.graph.AddTask(t)
		byName[spec.Name] = t.ID
	}
	for _, spec := range specs {
		toID := byName[spec.Name]
		for _, depName := range spec.Dependencies {
			fromID, ok := byName[depName]
			if !ok || fromID == toID {
				continue
			}
			if err := d.graph.AddDependency(fromID, toID, dag.DataDependency); err != nil {
				zenlog.WarningLog.Printf("workflow %s: dropping dependency %s -> %s: %v", d.wf.ID, depName, spec.Name, err)
			}
		}
	}
	return nil
}

// --- Implementation -------------------------------------------------------

func (d *Driver) runImplementation(ctx context.Context) error {
	if _, err := d.scheduler.DispatchReadyTasks(ctx); err != nil {
		return err
	}
	if d.scheduler.AllComplete() {
		return nil
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.scheduler.Events():
			switch ev.Type {
			case scheduler.TaskFailed:
				d.handleTaskFailed(ctx, ev)
			case scheduler.AllTasksComplete:
				return nil
			}
		case <-ticker.C:
			d.pollAgents(ctx)
		}
	}
}

func (d *Driver) pollAgents(ctx context.Context) {
	now := time.Now()
	for agentID, taskID := range d.scheduler.ActiveAgents() {
		if err := d.cfg.Pool.RefreshOutput(ctx, agentID); err != nil {
			zenlog.WarningLog.Printf("workflow %s: refresh output for agent %s: %v", d.wf.ID, agentID, err)
			continue
		}
		handle, ok := d.cfg.Pool.Get(agentID)
		if !ok {
			continue
		}

		quiesced, err := d.cfg.Waiter.HasQuiesced(agentID)
		if err == nil && quiesced {
			if commit, cerr := d.taskHeadCommit(ctx, taskID); cerr == nil && commit != "" && commit != d.wf.BaseCommit {
				_ = d.scheduler.HandleCompletion(ctx, agentID, commit)
				_ = d.cfg.Pool.Terminate(ctx, agentID)
				continue
			}
		}

		if ev, stuck := d.cfg.Monitor.CheckAgent(handle, now); stuck {
			d.handleStuck(ctx, handle, ev)
		}
	}
}

func (d *Driver) handleStuck(ctx context.Context, handle agentpool.AgentHandle, ev health.Event) {
	retryCount := d.cfg.Retries.GetRetries(handle.TaskID)
	action := d.cfg.Monitor.DetermineRecovery(handle, handle.LastOutput, retryCount)

	reason := fmt.Errorf("agent stuck for %s", ev.Duration)
	if action.Kind == health.Escalate {
		reason = errors.New(action.Message)
	}

	_ = d.cfg.Pool.Terminate(ctx, handle.ID)
	_ = d.scheduler.HandleFailure(handle.ID, reason)
	// Retry accounting happens uniformly in handleTaskFailed, triggered by
	// the TaskFailed event HandleFailure just published: a pattern-matched
	// Restart still respects the shared RetryTracker cap rather than
	// bypassing it, so a permanently stuck-pattern-emitting agent cannot
	// restart forever.
}

func (d *Driver) handleTaskFailed(ctx context.Context, ev scheduler.Event) {
	count := d.cfg.Retries.GetRetries(ev.TaskID)
	if count >= d.cfg.MaxRetries {
		return
	}
	d.cfg.Retries.Increment(ev.TaskID)
	if err := d.scheduler.ReinsertReplacement(ev.TaskID); err != nil {
		zenlog.ErrorLog.Printf("workflow %s: reinsert task %s for retry: %v", d.wf.ID, ev.TaskID, err)
		return
	}
	if _, err := d.scheduler.DispatchReadyTasks(ctx); err != nil {
		zenlog.ErrorLog.Printf("workflow %s: dispatch after retry of %s: %v", d.wf.ID, ev.TaskID, err)
	}
}

// --- Merging ---------------------------------------------------------------

func (d *Driver) runMerging(ctx context.Context) error {
	// Reset: a resumed workflow re-enters this phase with stale conflicts
	// already recorded from the run that paused it.
	d.wf.PendingConflicts = nil
	staging := d.stagingBranch()
	for _, taskID := range d.topoOrder() {
		t, ok := d.graph.Task(taskID)
		if !ok || t.Status != dag.Completed {
			continue
		}

		result, err := d.cfg.Resolver.Merge(ctx, d.taskWorkspace(taskID), staging)
		if err != nil && result.Kind != merge.Conflicts {
			return err
		}
		switch result.Kind {
		case merge.Success:
			d.wf.StagingCommit = result.Commit
		case merge.Conflicts:
			d.wf.PendingConflicts = append(d.wf.PendingConflicts, result.Files...)
		case merge.Failed:
			return result.Err
		}
	}

	if len(d.wf.PendingConflicts) > 0 {
		d.wf.Status = Paused
	}
	return nil
}

// topoOrder returns every task id in a topological, insertion-order-stable
// order (Kahn's algorithm, ties broken by DAG insertion order), per Open
// Question (ii) in DESIGN.md.
func (d *Driver) topoOrder() []dag.TaskID {
	tasks := d.graph.Tasks()
	edges := d.graph.Edges()

	indegree := make(map[dag.TaskID]int, len(tasks))
	succs := make(map[dag.TaskID][]dag.TaskID)
	for _, t := range tasks {
		indegree[t.ID] = 0
	}
	for _, e := range edges {
		indegree[e.To]++
		succs[e.From] = append(succs[e.From], e.To)
	}

	var queue []dag.TaskID
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	order := make([]dag.TaskID, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range succs[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	return order
}

// --- Documentation -----------------------------------------------------

func (d *Driver) runDocumentation(ctx context.Context) error {
	output, err := d.runSingleAgent(ctx, skillDocumentation, documentationPrompt(d.wf.Prompt))
	if err != nil {
		return err
	}
	if err := d.cfg.Store.CreateRef(d.refName("documentation-output"), output); err != nil && zenerr.KindOf(err) != zenerr.RefExists {
		return err
	}
	return nil
}

// --- shared single-agent phase helper -----------------------------------

// runSingleAgent provisions an ad hoc workspace (not tracked in the DAG),
// spawns one agent with skill, waits for its output to quiesce, and
// terminates it, returning the final captured output.
func (d *Driver) runSingleAgent(ctx context.Context, skill, prompt string) (string, error) {
	taskID := dag.NewTaskID()
	workspace, err := d.cfg.Worktrees.Create(ctx, taskID, d.wf.BaseCommit)
	if err != nil {
		return "", err
	}

	agentID, err := d.cfg.Pool.Spawn(ctx, taskID, skill, workspace, prompt)
	if err != nil {
		return "", err
	}
	defer func() { _ = d.cfg.Pool.Terminate(ctx, agentID) }()

	return d.waitForAgent(ctx, agentID)
}

func (d *Driver) waitForAgent(ctx context.Context, agentID agentpool.AgentID) (string, error) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	stable := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if err := d.cfg.Pool.RefreshOutput(ctx, agentID); err != nil {
				return "", err
			}
			quiesced, err := d.cfg.Waiter.HasQuiesced(agentID)
			if err != nil {
				return "", err
			}
			if quiesced {
				stable++
			} else {
				stable = 0
			}
			if stable >= quiesceStableTicks {
				handle, _ := d.cfg.Pool.Get(agentID)
				return handle.LastOutput, nil
			}
		}
	}
}

// --- workspace/ref path helpers ------------------------------------------

func (d *Driver) taskWorkspace(taskID dag.TaskID) string {
	return filepath.Join(d.cfg.WorktreeRoot, taskID.Short())
}

func (d *Driver) taskHeadCommit(ctx context.Context, taskID dag.TaskID) (string, error) {
	return gitRevParseHead(ctx, d.taskWorkspace(taskID))
}

func (d *Driver) stagingBranch() string {
	return "zen/staging/" + d.wf.ID.String()[:8]
}

func (d *Driver) refName(suffix string) string {
	return "workflow-outputs/" + d.wf.ID.String() + "/" + suffix
}
