package dag

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyTasksNoEdges(t *testing.T) {
	g := New()
	a := NewTask("A", "")
	b := NewTask("B", "")
	c := NewTask("C", "")
	g.AddTask(a)
	g.AddTask(b)
	g.AddTask(c)

	ready := g.ReadyTasks(map[TaskID]bool{})
	assert.Len(t, ready, 3)
}

func TestReadyTasksDiamond(t *testing.T) {
	g := New()
	a := NewTask("A", "")
	b := NewTask("B", "")
	c := NewTask("C", "")
	g.AddTask(a)
	g.AddTask(b)
	g.AddTask(c)
	require.NoError(t, g.AddDependency(a.ID, c.ID, DataDependency))
	require.NoError(t, g.AddDependency(b.ID, c.ID, DataDependency))

	ready := g.ReadyTasks(map[TaskID]bool{})
	assert.Len(t, ready, 2)

	completed := map[TaskID]bool{a.ID: true, b.ID: true}
	ready = g.ReadyTasks(completed)
	require.Len(t, ready, 1)
	assert.Equal(t, c.ID, ready[0].ID)
}

func TestReadyTasksExcludesTaskWithIncompletePredecessor(t *testing.T) {
	g := New()
	a := NewTask("A", "")
	b := NewTask("B", "")
	g.AddTask(a)
	g.AddTask(b)
	require.NoError(t, g.AddDependency(a.ID, b.ID, OrderDependency))

	ready := g.ReadyTasks(map[TaskID]bool{})
	require.Len(t, ready, 1)
	assert.Equal(t, a.ID, ready[0].ID)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	g := New()
	a := NewTask("A", "")
	b := NewTask("B", "")
	g.AddTask(a)
	g.AddTask(b)
	require.NoError(t, g.AddDependency(a.ID, b.ID, DataDependency))

	before := g.TaskCount()
	err := g.AddDependency(b.ID, a.ID, DataDependency)
	require.Error(t, err)
	assert.Equal(t, before, g.TaskCount())
	assert.False(t, g.HasCycleIfAdded(a.ID, b.ID))
	assert.True(t, g.HasCycleIfAdded(b.ID, a.ID))
}

func TestAddDependencyUnknownTask(t *testing.T) {
	g := New()
	a := NewTask("A", "")
	g.AddTask(a)
	err := g.AddDependency(a.ID, NewTaskID(), DataDependency)
	assert.Error(t, err)
}

func TestMarkRunningExcludesFromReady(t *testing.T) {
	g := New()
	a := NewTask("A", "")
	g.AddTask(a)
	require.NoError(t, g.MarkRunning(a.ID, uuid.New(), time.Now()))
	ready := g.ReadyTasks(map[TaskID]bool{})
	assert.Empty(t, ready)
}
