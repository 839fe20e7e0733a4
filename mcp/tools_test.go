package mcp

import (
	"context"
	"encoding/json"
	"testing"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-cli/zen/workflow"
)

// fakeRefStore is an in-memory RefStore for exercising the mcp handlers
// without a real store.Store/git backing.
type fakeRefStore struct {
	records map[string]workflow.Record
}

func (f *fakeRefStore) ListRefs(prefix string) ([]string, error) {
	var out []string
	for k := range f.records {
		out = append(out, prefix+k)
	}
	return out, nil
}

func (f *fakeRefStore) ReadRef(name string, dest any) (bool, error) {
	id := name
	if len(name) > len("workflows/") {
		id = name[len("workflows/"):]
	}
	rec, ok := f.records[id]
	if !ok {
		return false, nil
	}
	out, ok := dest.(*workflow.Record)
	if !ok {
		return false, nil
	}
	*out = rec
	return true, nil
}

// resultText extracts the text string from a CallToolResult, assuming a
// single TextContent item.
func resultText(t *testing.T, result *gomcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := gomcp.AsTextContent(result.Content[0])
	require.True(t, ok, "result content[0] is not TextContent: %T", result.Content[0])
	return tc.Text
}

func newRequest(args map[string]any) gomcp.CallToolRequest {
	req := gomcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestHandleListWorkflows(t *testing.T) {
	t.Run("no workflows", func(t *testing.T) {
		reader := NewStateReader(&fakeRefStore{records: map[string]workflow.Record{}})
		result, err := handleListWorkflows(reader)(context.Background(), newRequest(nil))
		require.NoError(t, err)
		assert.Contains(t, resultText(t, result), "No zen workflows found")
	})

	t.Run("returns workflow summaries as JSON", func(t *testing.T) {
		store := &fakeRefStore{records: map[string]workflow.Record{
			"wf-1": {ID: "wf-1", Status: "running", Phase: "Execution", Prompt: "add a feature"},
		}}
		reader := NewStateReader(store)
		result, err := handleListWorkflows(reader)(context.Background(), newRequest(nil))
		require.NoError(t, err)

		var views []workflowView
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "wf-1", views[0].ID)
		assert.Equal(t, "running", views[0].Status)
		assert.Equal(t, "Execution", views[0].Phase)
	})
}

func TestHandleGetWorkflow(t *testing.T) {
	t.Run("unknown id errors", func(t *testing.T) {
		reader := NewStateReader(&fakeRefStore{records: map[string]workflow.Record{}})
		result, err := handleGetWorkflow(reader)(context.Background(), newRequest(map[string]any{"workflow_id": "nope"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("returns task detail", func(t *testing.T) {
		store := &fakeRefStore{records: map[string]workflow.Record{
			"wf-1": {
				ID:     "wf-1",
				Status: "paused",
				Phase:  "Merging",
				Prompt: "add a feature",
				Tasks: []workflow.TaskRecord{
					{Name: "write tests", Status: "Completed", ResultCommit: "abc123"},
				},
				PendingConflicts: []workflow.ConflictRecord{{Path: "main.go"}},
			},
		}}
		reader := NewStateReader(store)
		result, err := handleGetWorkflow(reader)(context.Background(), newRequest(map[string]any{"workflow_id": "wf-1"}))
		require.NoError(t, err)

		var detail workflowDetailView
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &detail))
		assert.Equal(t, "wf-1", detail.ID)
		assert.Equal(t, 1, detail.PendingConflicts)
		require.Len(t, detail.Tasks, 1)
		assert.Equal(t, "write tests", detail.Tasks[0].Name)
		assert.Equal(t, "abc123", detail.Tasks[0].ResultCommit)
	})
}

func TestHandleGetPendingConflicts(t *testing.T) {
	t.Run("no conflicts", func(t *testing.T) {
		store := &fakeRefStore{records: map[string]workflow.Record{
			"wf-1": {ID: "wf-1"},
		}}
		reader := NewStateReader(store)
		result, err := handleGetPendingConflicts(reader)(context.Background(), newRequest(map[string]any{"workflow_id": "wf-1"}))
		require.NoError(t, err)
		assert.Contains(t, resultText(t, result), "No pending conflicts")
	})

	t.Run("lists conflicted paths", func(t *testing.T) {
		store := &fakeRefStore{records: map[string]workflow.Record{
			"wf-1": {
				ID:               "wf-1",
				PendingConflicts: []workflow.ConflictRecord{{Path: "a.go"}, {Path: "b.go"}},
			},
		}}
		reader := NewStateReader(store)
		result, err := handleGetPendingConflicts(reader)(context.Background(), newRequest(map[string]any{"workflow_id": "wf-1"}))
		require.NoError(t, err)

		var paths []string
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &paths))
		assert.Equal(t, []string{"a.go", "b.go"}, paths)
	})
}
