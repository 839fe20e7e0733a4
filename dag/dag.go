package dag

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zen-cli/zen/zenerr"
)

// edge is a single directed, typed dependency: From must complete before To.
type edge struct {
	from, to TaskID
	kind     DependencyType
}

// TaskDAG is a mapping from task id to Task plus a set of directed edges.
// It is safe for concurrent use; mutators take a write lock, readers a read
// lock, per §5 of the orchestrator design.
type TaskDAG struct {
	mu sync.RWMutex

	nodes map[TaskID]*Task
	// order preserves insertion order for reproducible ready-set iteration.
	order []TaskID

	// preds/succs are adjacency maps keyed by task id, used for O(1) lookup
	// of a task's predecessor set and for cycle-detection DFS.
	preds map[TaskID]map[TaskID]DependencyType
	succs map[TaskID]map[TaskID]DependencyType
}

// New creates an empty TaskDAG.
func New() *TaskDAG {
	return &TaskDAG{
		nodes: make(map[TaskID]*Task),
		preds: make(map[TaskID]map[TaskID]DependencyType),
		succs: make(map[TaskID]map[TaskID]DependencyType),
	}
}

// AddTask registers a new task node. Re-adding an existing id overwrites the
// stored task but leaves its edges intact.
func (g *TaskDAG) AddTask(t *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[t.ID]; !exists {
		g.order = append(g.order, t.ID)
		g.preds[t.ID] = make(map[TaskID]DependencyType)
		g.succs[t.ID] = make(map[TaskID]DependencyType)
	}
	g.nodes[t.ID] = t
}

// AddDependency inserts a from -> to edge of the given kind. If the edge
// would create a cycle, it is rejected with CycleDetected and the graph is
// left byte-identical to its pre-call state.
func (g *TaskDAG) AddDependency(from, to TaskID, kind DependencyType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.AddDependency", fmt.Errorf("task %s not found", from))
	}
	if _, ok := g.nodes[to]; !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.AddDependency", fmt.Errorf("task %s not found", to))
	}

	if g.reachable(to, from) {
		return zenerr.New(zenerr.CycleDetected, "dag.AddDependency",
			fmt.Errorf("adding %s -> %s would create a cycle", from, to))
	}

	g.preds[to][from] = kind
	g.succs[from][to] = kind
	return nil
}

// reachable performs a DFS from start and reports whether target is
// reachable via successor edges. Must be called with g.mu held.
func (g *TaskDAG) reachable(start, target TaskID) bool {
	if start == target {
		return true
	}
	visited := make(map[TaskID]bool)
	stack := []TaskID{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == target {
			return true
		}
		for next := range g.succs[n] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// HasCycleIfAdded reports whether adding from -> to would create a cycle,
// without mutating the graph.
func (g *TaskDAG) HasCycleIfAdded(from, to TaskID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachable(to, from)
}

// Task returns a copy of the task with the given id, if present.
func (g *TaskDAG) Task(id TaskID) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// TaskCount returns the number of task nodes in the graph.
func (g *TaskDAG) TaskCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Tasks returns a snapshot of every task node, in insertion order. Used by
// WorkflowDriver to persist a workflow's full state and to compute a
// topological merge order.
func (g *TaskDAG) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Edge is a directed, typed dependency exposed to callers that need the
// full edge set (e.g. to compute a topological order outside the package).
type Edge struct {
	From, To TaskID
	Kind     DependencyType
}

// Edges returns every edge currently in the graph, in no particular order.
func (g *TaskDAG) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for from, succs := range g.succs {
		for to, kind := range succs {
			out = append(out, Edge{From: from, To: to, Kind: kind})
		}
	}
	return out
}

// Predecessors returns the set of task ids that must complete before id.
func (g *TaskDAG) Predecessors(id TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	preds := make([]TaskID, 0, len(g.preds[id]))
	for p := range g.preds[id] {
		preds = append(preds, p)
	}
	return preds
}

// ReadyTasks returns, in insertion order, every task whose status is not in
// {Running, Completed, Failed} and whose predecessors are all in completed.
func (g *TaskDAG) ReadyTasks(completed map[TaskID]bool) []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for _, id := range g.order {
		t := g.nodes[id]
		if t.Status.terminal() {
			continue
		}
		allDone := true
		for pred := range g.preds[id] {
			if !completed[pred] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, t.clone())
		}
	}
	return ready
}

// SetStatus updates a task's status. Mutation is the Scheduler's exclusive
// privilege per the data-model invariants.
func (g *TaskDAG) SetStatus(id TaskID, status Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[id]
	if !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.SetStatus", fmt.Errorf("task %s not found", id))
	}
	t.Status = status
	return nil
}

// MarkRunning transitions a task to Running, stamping StartedAt and the
// assigned agent id.
func (g *TaskDAG) MarkRunning(id TaskID, agentID uuid.UUID, startedAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[id]
	if !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.MarkRunning", fmt.Errorf("task %s not found", id))
	}
	t.Status = Running
	t.AgentID = &agentID
	t.StartedAt = &startedAt
	return nil
}

// MarkCompleted transitions a task to Completed, recording its result commit.
func (g *TaskDAG) MarkCompleted(id TaskID, commit string, endedAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[id]
	if !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.MarkCompleted", fmt.Errorf("task %s not found", id))
	}
	t.Status = Completed
	t.ResultCommit = commit
	t.EndedAt = &endedAt
	return nil
}

// MarkFailed transitions a task to Failed.
func (g *TaskDAG) MarkFailed(id TaskID, endedAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[id]
	if !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.MarkFailed", fmt.Errorf("task %s not found", id))
	}
	t.Status = Failed
	t.EndedAt = &endedAt
	return nil
}

// ReplaceForRetry resets a Failed task back to Pending so it can be
// redispatched, preserving its TaskID so DAG successor edges still fire.
// Used by WorkflowDriver when a retry is available (§4.7).
func (g *TaskDAG) ReplaceForRetry(id TaskID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[id]
	if !ok {
		return zenerr.New(zenerr.UnknownTask, "dag.ReplaceForRetry", fmt.Errorf("task %s not found", id))
	}
	t.Status = Pending
	t.AgentID = nil
	t.StartedAt = nil
	t.EndedAt = nil
	return nil
}
