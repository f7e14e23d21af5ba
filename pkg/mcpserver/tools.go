// Package mcpserver exposes the engine as Model Context Protocol tools over
// stdio.
package mcpserver

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/trace"
)

// Runner is the engine surface the tools need.
type Runner interface {
	Run(ctx context.Context, req schema.Request, observers ...trace.Observer) (*schema.Response, error)
	Registry() *registry.Registry
	Selector() *router.Selector
}

// New creates an MCP server with every switchboard tool registered.
func New(runner Runner, version string, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"switchboard",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	RegisterTools(s, runner, logger)
	return s
}

// RegisterTools adds the run_jury, list_backends and list_routes tools.
func RegisterTools(s *server.MCPServer, runner Runner, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{runner: runner, logger: logger}

	s.AddTool(mcp.NewTool("run_jury",
		mcp.WithDescription("Classify a task, route it to the best backend, verify the answer and fall back once if verification fails. Returns the answer with its trace and scoreboard."),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Task category"),
			mcp.Enum(taskNames()...),
		),
		mcp.WithString("input",
			mcp.Required(),
			mcp.Description("The prompt to answer"),
		),
		mcp.WithString("mode",
			mcp.Description("Routing mode (default: best)"),
			mcp.Enum(string(schema.ModeBest), string(schema.ModeFast), string(schema.ModeCheap)),
		),
	), h.RunJury)

	s.AddTool(mcp.NewTool("list_backends",
		mcp.WithDescription("List the registered backends with their tags and cost tiers."),
		mcp.WithReadOnlyHintAnnotation(true),
	), h.ListBackends)

	s.AddTool(mcp.NewTool("list_routes",
		mcp.WithDescription("List the routing rules in precedence order."),
		mcp.WithReadOnlyHintAnnotation(true),
	), h.ListRoutes)

	return h
}

// Serve runs s on the given streams until ctx ends or input closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func taskNames() []string {
	out := make([]string, 0, len(schema.Tasks))
	for _, t := range schema.Tasks {
		out = append(out, string(t))
	}
	return out
}
