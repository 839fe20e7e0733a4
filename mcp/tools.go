package mcp

import (
	"context"
	"encoding/json"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// workflowView is the JSON representation returned by list_workflows.
type workflowView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Phase  string `json:"phase"`
	Prompt string `json:"prompt"`
}

// taskView is the JSON representation of one task within get_workflow.
type taskView struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResultCommit string `json:"result_commit,omitempty"`
}

// workflowDetailView is the JSON representation returned by get_workflow.
type workflowDetailView struct {
	workflowView
	StagingCommit    string     `json:"staging_commit,omitempty"`
	Tasks            []taskView `json:"tasks"`
	PendingConflicts int        `json:"pending_conflicts"`
}

func handleListWorkflows(reader *StateReader) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		Log("tool call: list_workflows")
		records, err := reader.ReadWorkflows()
		if err != nil {
			Log("list_workflows error: %v", err)
			return gomcp.NewToolResultError("failed to read workflows: " + err.Error()), nil
		}

		if len(records) == 0 {
			return gomcp.NewToolResultText("No zen workflows found."), nil
		}

		views := make([]workflowView, 0, len(records))
		for _, rec := range records {
			views = append(views, workflowView{
				ID:     rec.ID,
				Status: rec.Status,
				Phase:  rec.Phase,
				Prompt: rec.Prompt,
			})
		}

		return jsonResult(views)
	}
}

func handleGetWorkflow(reader *StateReader) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id := req.GetString("workflow_id", "")
		Log("tool call: get_workflow (id=%s)", id)
		rec, ok, err := reader.ReadWorkflow(id)
		if err != nil {
			return gomcp.NewToolResultError("failed to read workflow: " + err.Error()), nil
		}
		if !ok {
			return gomcp.NewToolResultError("no workflow with id " + id), nil
		}

		detail := workflowDetailView{
			workflowView: workflowView{
				ID:     rec.ID,
				Status: rec.Status,
				Phase:  rec.Phase,
				Prompt: rec.Prompt,
			},
			StagingCommit:    rec.StagingCommit,
			PendingConflicts: len(rec.PendingConflicts),
		}
		for _, t := range rec.Tasks {
			detail.Tasks = append(detail.Tasks, taskView{
				Name:         t.Name,
				Status:       t.Status,
				ResultCommit: t.ResultCommit,
			})
		}

		return jsonResult(detail)
	}
}

func handleGetPendingConflicts(reader *StateReader) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id := req.GetString("workflow_id", "")
		Log("tool call: get_pending_conflicts (id=%s)", id)
		rec, ok, err := reader.ReadWorkflow(id)
		if err != nil {
			return gomcp.NewToolResultError("failed to read workflow: " + err.Error()), nil
		}
		if !ok {
			return gomcp.NewToolResultError("no workflow with id " + id), nil
		}
		if len(rec.PendingConflicts) == 0 {
			return gomcp.NewToolResultText("No pending conflicts for workflow " + id), nil
		}

		paths := make([]string, 0, len(rec.PendingConflicts))
		for _, c := range rec.PendingConflicts {
			paths = append(paths, c.Path)
		}
		return jsonResult(paths)
	}
}

func jsonResult(v any) (*gomcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return gomcp.NewToolResultError("failed to marshal result: " + err.Error()), nil
	}
	return gomcp.NewToolResultText(string(data)), nil
}
