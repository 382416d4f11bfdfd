// Package mcp exposes the workflow engine over the Model Context Protocol
// so agents can run and inspect workflows through a stdio transport.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pagerun/pagerun/internal/dispatch"
	"github.com/pagerun/pagerun/internal/engine"
	"github.com/pagerun/pagerun/internal/store"
	"github.com/pagerun/pagerun/internal/validation"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Engine    *engine.Engine
	Registry  *dispatch.Registry
	Validator *validation.WorkflowValidator
	Store     store.Store
	Logger    *slog.Logger
}

// Server wraps an MCP server with pagerun tool handlers.
type Server struct {
	engine    *engine.Engine
	registry  *dispatch.Registry
	validator *validation.WorkflowValidator
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all 4 tools registered.
func NewServer(version string, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		engine:    deps.Engine,
		registry:  deps.Registry,
		validator: deps.Validator,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"pagerun",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Pagerun executes browser automation workflows. Use pagerun.run to execute a workflow document, pagerun.validate to check one without running it, pagerun.history to inspect past runs, and pagerun.actions to list available browser actions."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: actionsTool(), Handler: s.handleActions},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("pagerun.run",
		mcp.WithDescription("Validate and execute a workflow document, returning the run result with its execution trace"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("The workflow document (same shape as a workflow file)")),
		mcp.WithObject("variables", mcp.Description("Variable overrides applied before execution")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("pagerun.validate",
		mcp.WithDescription("Run the full validation pipeline on a workflow document without executing it"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("The workflow document to validate")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("pagerun.history",
		mcp.WithDescription("List past workflow runs, most recent first"),
		mcp.WithString("workflow", mcp.Description("Filter by workflow name")),
		mcp.WithString("status", mcp.Description("Filter by run status"),
			mcp.Enum("running", "completed", "failed", "cancelled")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
		mcp.WithString("run_id", mcp.Description("Return a single run by ID, including its full trace")),
	)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("pagerun.actions",
		mcp.WithDescription("List the registered browser actions a workflow step may use"),
	)
}
