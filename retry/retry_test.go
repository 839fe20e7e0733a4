package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zen-cli/zen/dag"
)

func TestGetRetriesUnknownTaskIsZero(t *testing.T) {
	tr := New()
	assert.Equal(t, 0, tr.GetRetries(dag.NewTaskID()))
}

func TestIncrementAccumulates(t *testing.T) {
	tr := New()
	id := dag.NewTaskID()
	assert.Equal(t, 1, tr.Increment(id))
	assert.Equal(t, 2, tr.Increment(id))
	assert.Equal(t, 2, tr.GetRetries(id))
}

func TestResetZeroesSingleTask(t *testing.T) {
	tr := New()
	id := dag.NewTaskID()
	other := dag.NewTaskID()
	tr.Increment(id)
	tr.Increment(other)

	tr.Reset(id)
	assert.Equal(t, 0, tr.GetRetries(id))
	assert.Equal(t, 1, tr.GetRetries(other))
}

func TestClearDropsEverything(t *testing.T) {
	tr := New()
	a, b := dag.NewTaskID(), dag.NewTaskID()
	tr.Increment(a)
	tr.Increment(b)

	tr.Clear()
	assert.Equal(t, 0, tr.GetRetries(a))
	assert.Equal(t, 0, tr.GetRetries(b))
}
