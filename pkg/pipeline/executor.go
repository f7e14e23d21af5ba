package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/search"
)

const defaultSearchResults = 5

// Execution is what one backend call produced. On failure only Latency,
// Prompt and the search fields are set.
type Execution struct {
	BackendID string
	Model     string
	Text      string
	Usage     adapter.Usage
	Latency   time.Duration
	Cost      Cost
	Priced    bool
	Prompt    []adapter.Message

	SearchProvider string
	SearchLatency  time.Duration
	Sources        []string
	SearchErr      error
}

// Executor builds the prompt for a backend and calls it through a provider.
type Executor struct {
	provider   adapter.Provider
	registry   *registry.Registry
	search     search.Source
	maxResults int
	logger     *zap.Logger
}

// NewExecutor creates an executor. src may be nil to disable augmentation.
func NewExecutor(provider adapter.Provider, reg *registry.Registry, src search.Source, maxResults int, logger *zap.Logger) *Executor {
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{provider: provider, registry: reg, search: src, maxResults: maxResults, logger: logger}
}

// Execute runs backendID against the request. Search runs at most once per
// request, only when the descriptor asks for external context; its failure
// is recorded and never fatal. The executor does not retry.
func (e *Executor) Execute(ctx context.Context, state *RequestState, backendID string) (*Execution, error) {
	backend, ok := e.registry.Get(backendID)
	if !ok {
		return nil, fmt.Errorf("unknown backend %s", backendID)
	}

	exec := &Execution{BackendID: backendID, Model: backend.Model}

	var results []search.Result
	if state.Descriptor.NeedsExternalContext && e.search != nil && e.search.Available() {
		outcome := state.lookup(ctx, e.search, e.maxResults)
		exec.SearchProvider = outcome.provider
		exec.SearchLatency = outcome.latency
		exec.SearchErr = outcome.err
		if outcome.err != nil {
			e.logger.Warn("search failed, continuing without context",
				zap.String("run_id", state.RunID),
				zap.String("provider", outcome.provider),
				zap.Error(outcome.err))
		} else {
			results = outcome.results
			exec.Sources = search.FormatSources(results)
		}
	}

	exec.Prompt = buildMessages(state.Request, state.Descriptor, results)

	started := time.Now()
	res, err := e.provider.Call(ctx, backendID, exec.Prompt, backend.MaxOutput, backend.Temperature)
	if err != nil {
		exec.Latency = time.Since(started)
		return exec, err
	}
	exec.Text = res.Text
	exec.Usage = res.Usage
	exec.Latency = res.Latency
	return exec, nil
}

func buildMessages(req schema.Request, d schema.TaskDescriptor, results []search.Result) []adapter.Message {
	return []adapter.Message{
		{Role: adapter.RoleSystem, Content: systemPrompt(d, results)},
		{Role: adapter.RoleUser, Content: fmt.Sprintf("Task: %s\n\n%s", req.Task, req.Input)},
	}
}

func systemPrompt(d schema.TaskDescriptor, results []search.Result) string {
	var b strings.Builder

	switch d.Intent {
	case schema.IntentCode:
		b.WriteString("You are an expert software engineer. Answer with clear, correct code.")
	case schema.IntentReasoning:
		b.WriteString("You are a careful analyst. Work through the problem step by step and explain your conclusion.")
	case schema.IntentResearch:
		b.WriteString("You are a research assistant. Give accurate, well-sourced answers.")
	default:
		b.WriteString("You are a helpful assistant.")
	}

	if len(results) > 0 {
		b.WriteString("\n\nUse the search results below to answer. Cite them as [1], [2], and so on.\n\n")
		b.WriteString(search.FormatContext(results))
	} else if d.NeedsExternalContext {
		b.WriteString("\n\nCite sources and references where you can.")
	}

	switch d.ExpectedFormat {
	case schema.FormatJSON:
		b.WriteString("\n\nRespond with valid JSON only, without commentary.")
	case schema.FormatDiff:
		b.WriteString("\n\nRespond with a unified diff whose file headers start with --- and +++.")
	}

	return b.String()
}
