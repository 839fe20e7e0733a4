package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-cli/zen/agentpool"
	"github.com/zen-cli/zen/dag"
	"github.com/zen-cli/zen/health"
	"github.com/zen-cli/zen/merge"
	"github.com/zen-cli/zen/retry"
	"github.com/zen-cli/zen/scheduler"
	"github.com/zen-cli/zen/store"
	"github.com/zen-cli/zen/worktree"
)

func TestTopoOrderRespectsDependenciesAndIsInsertionStable(t *testing.T) {
	d := New(Config{Prompt: "x"})
	a := dag.NewTask("A", "")
	b := dag.NewTask("B", "")
	c := dag.NewTask("C", "")
	d.graph.AddTask(a)
	d.graph.AddTask(b)
	d.graph.AddTask(c)
	require.NoError(t, d.graph.AddDependency(a.ID, c.ID, dag.DataDependency))

	order := d.topoOrder()
	require.Len(t, order, 3)

	pos := map[dag.TaskID]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[a.ID], pos[c.ID])
	// B has no dependency relationship; insertion order keeps it before C
	// (B was added before C) even though it ties with A at indegree 0.
	assert.Less(t, pos[b.ID], pos[c.ID])
}

func TestHandleTaskFailedRetriesUnderCapThenStopsAtCap(t *testing.T) {
	d := New(Config{Prompt: "x", MaxRetries: 1, Retries: retry.New(), Worktrees: failingWorktrees{}})
	task := dag.NewTask("flaky", "")
	d.graph.AddTask(task)

	d.handleTaskFailed(context.Background(), scheduler.Event{TaskID: task.ID})
	assert.Equal(t, 1, d.cfg.Retries.GetRetries(task.ID))
	tsk, _ := d.graph.Task(task.ID)
	assert.Equal(t, dag.Pending, tsk.Status) // ReplaceForRetry resets to Pending

	require.NoError(t, d.graph.MarkFailed(task.ID, time.Now()))
	d.handleTaskFailed(context.Background(), scheduler.Event{TaskID: task.ID})
	assert.Equal(t, 1, d.cfg.Retries.GetRetries(task.ID), "at cap: no further increment")
	tsk, _ = d.graph.Task(task.ID)
	assert.Equal(t, dag.Failed, tsk.Status, "left Failed once retries are exhausted")
}

// failingWorktrees refuses every Create, so the redispatch that follows a
// retry leaves the task Pending instead of spawning an agent.
type failingWorktrees struct{}

func (failingWorktrees) Create(context.Context, dag.TaskID, string) (string, error) {
	return "", fmt.Errorf("no worktrees in this test")
}

// --- full integration: Planning -> TaskGeneration -> Implementation -> Merging -> Complete ---

const taskGenFixture = `
<TASK-1>
Setup | none | Scaffold the project.
</TASK-1>
<TASK-2>
Build | Setup | Implement the feature.
</TASK-2>
`

type fakeRuntime struct {
	mu      sync.Mutex
	n       int
	outputs map[agentpool.AgentID]string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{outputs: make(map[agentpool.AgentID]string)}
}

func (f *fakeRuntime) Spawn(ctx context.Context, agentID agentpool.AgentID, taskID dag.TaskID, workspace, skill, initialPrompt string) error {
	f.mu.Lock()
	f.n++
	n := f.n
	f.mu.Unlock()

	switch skill {
	case skillPlanning:
		f.setOutput(agentID, "Build a small widget with a setup step and a build step.")
	case skillTaskGenerator:
		f.setOutput(agentID, taskGenFixture)
	default:
		f.setOutput(agentID, "implemented")
		commitFile(workspace, fmt.Sprintf("output-%d.txt", n), fmt.Sprintf("work product %d\n", n))
	}
	return nil
}

func (f *fakeRuntime) setOutput(agentID agentpool.AgentID, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[agentID] = out
}

func (f *fakeRuntime) Terminate(ctx context.Context, agentID agentpool.AgentID) error { return nil }

func (f *fakeRuntime) OutputSnapshot(ctx context.Context, agentID agentpool.AgentID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[agentID], nil
}

type alwaysQuiescedWaiter struct{}

func (alwaysQuiescedWaiter) HasQuiesced(agentpool.AgentID) (bool, error) { return true, nil }

func TestDriverRunEndToEnd(t *testing.T) {
	repoPath := setupWorkflowTestRepo(t)
	head := runGitOutput(t, repoPath, "rev-parse", "HEAD")

	rootDir := filepath.Join(t.TempDir(), "worktrees")
	wt := worktree.New(repoPath, rootDir)
	rt := newFakeRuntime()
	pool := agentpool.New(8, 32, rt)
	s, err := store.Open(repoPath)
	require.NoError(t, err)

	cfg := Config{
		Prompt:            "build a widget",
		BaseCommit:        head,
		WorktreeRoot:      rootDir,
		Pool:              pool,
		Worktrees:         wt,
		Resolver:          merge.New(),
		Monitor:           health.New(time.Hour, 2, nil),
		Retries:           retry.New(),
		Store:             s,
		Waiter:            alwaysQuiescedWaiter{},
		MaxRetries:        2,
		PollInterval:      5 * time.Millisecond,
		SkipDocumentation: true,
	}
	d := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	wf := d.Workflow()
	assert.Equal(t, Completed, wf.Status)
	assert.Equal(t, Complete, wf.Phase)
	assert.NotEmpty(t, wf.StagingCommit)
	assert.Empty(t, wf.PendingConflicts)

	var rec Record
	ok, err := s.ReadRef("workflows/"+wf.ID.String(), &rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Completed", rec.Status)
	assert.Len(t, rec.Tasks, 2)
}

func setupWorkflowTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(repoPath, 0755))
	runGit(t, repoPath, "init", "-b", "main")
	runGit(t, repoPath, "config", "user.email", "test@example.com")
	runGit(t, repoPath, "config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("hi\n"), 0644))
	runGit(t, repoPath, "add", "README.md")
	runGit(t, repoPath, "commit", "-m", "initial")
	return repoPath
}

func commitFile(dir, name, content string) {
	_ = os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)
	_ = exec.Command("git", "-C", dir, "add", name).Run()
	_ = exec.Command("git", "-C", dir, "commit", "-m", "add "+name).Run()
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func runGitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return trimNewline(string(out))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
