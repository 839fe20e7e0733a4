package mcp

import (
	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const serverInstructions = "You are running inside zen, a multi-agent orchestration system. " +
	"A prompt is decomposed into a task DAG and executed by several coding " +
	"agents in parallel worktrees, then merged back together. Use these tools " +
	"to check what a running workflow is doing and whether it needs attention " +
	"(e.g. a merge conflict) before assuming it is stuck."

// Server wraps an MCP server exposing read-only introspection over zen's
// persisted workflow state, generalizing the teacher's per-repo instance
// list (mcp/server.go) to zen's workflow/task model.
type Server struct {
	server *mcpserver.MCPServer
	reader *StateReader
}

// New creates a zen MCP server reading workflow state from reader.
func New(reader *StateReader) *Server {
	s := mcpserver.NewMCPServer(
		"zen",
		"0.1.0",
		mcpserver.WithInstructions(serverInstructions),
	)

	srv := &Server{server: s, reader: reader}
	srv.registerTools()
	return srv
}

func (s *Server) registerTools() {
	listWorkflows := gomcp.NewTool("list_workflows",
		gomcp.WithDescription("List every known workflow, its phase, status and prompt."),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(listWorkflows, handleListWorkflows(s.reader))

	getWorkflow := gomcp.NewTool("get_workflow",
		gomcp.WithDescription("Get full detail for one workflow: tasks, their statuses, and any pending merge conflicts."),
		gomcp.WithString("workflow_id",
			gomcp.Required(),
			gomcp.Description("The workflow's id, as shown by list_workflows."),
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(getWorkflow, handleGetWorkflow(s.reader))

	getConflicts := gomcp.NewTool("get_pending_conflicts",
		gomcp.WithDescription("List files with unresolved merge conflicts for a paused workflow."),
		gomcp.WithString("workflow_id",
			gomcp.Required(),
			gomcp.Description("The workflow's id, as shown by list_workflows."),
		),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(getConflicts, handleGetPendingConflicts(s.reader))
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve() error {
	return mcpserver.ServeStdio(s.server)
}
