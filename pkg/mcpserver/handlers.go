package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/pipeline"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// Handlers implements the MCP tools.
type Handlers struct {
	runner Runner
	logger *zap.Logger
}

// RunJury handles the run_jury tool. Pipeline failures come back as tool
// errors carrying the wire error body, never as protocol errors.
func (h *Handlers) RunJury(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := request.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError("task argument is required and must be a string"), nil
	}
	input, err := request.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError("input argument is required and must be a string"), nil
	}

	resp, err := h.runner.Run(ctx, schema.Request{
		Task:  schema.Task(task),
		Input: input,
		Mode:  schema.Mode(request.GetString("mode", "")),
	})
	if err != nil {
		body := pipeline.Describe(err)
		h.logger.Warn("run_jury tool failed", zap.String("kind", body.Error), zap.Error(err))
		result := mcp.NewToolResultStructured(body, fmt.Sprintf("%s: %s", body.Error, body.Message))
		result.IsError = true
		return result, nil
	}

	return mcp.NewToolResultStructured(resp, summarize(resp)), nil
}

// ListBackends handles the list_backends tool.
func (h *Handlers) ListBackends(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type backend struct {
		ID       string          `json:"id"`
		Model    string          `json:"model"`
		Kind     string          `json:"kind,omitempty"`
		Tags     []schema.Intent `json:"tags,omitempty"`
		CostTier schema.CostTier `json:"cost_tier"`
	}
	all := h.runner.Registry().All()
	out := make([]backend, 0, len(all))
	for _, b := range all {
		out = append(out, backend{ID: b.ID, Model: b.Model, Kind: string(b.Kind), Tags: b.Tags, CostTier: b.CostTier})
	}
	return mcp.NewToolResultStructuredOnly(map[string]any{"backends": out}), nil
}

// ListRoutes handles the list_routes tool.
func (h *Handlers) ListRoutes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for i, r := range h.runner.Selector().Routes() {
		fmt.Fprintf(&b, "%d. %s (%s) -> %s\n", i+1, r.Rule, r.When, r.Backend)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func summarize(resp *schema.Response) string {
	var b strings.Builder
	b.WriteString(resp.Final)
	status := "verified"
	if !resp.Verified {
		status = "not verified"
	}
	fmt.Fprintf(&b, "\n\n[%s via %s, run %s]", status, resp.WinnerModel, resp.RunID)
	if len(resp.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		b.WriteString(strings.Join(resp.Sources, "\n"))
	}
	return b.String()
}
