package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zen-systems/switchboard/pkg/artifact"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Responses and failures are keyed by model.
type MockAdapter struct {
	mu              sync.Mutex
	responses       map[string]string
	errors          map[string]error
	delays          map[string]time.Duration
	defaultResponse string
	calls           []Request
	Usage           *Usage
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return NewMockAdapterWithResponses(nil, "")
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	if responses == nil {
		responses = make(map[string]string)
	}
	return &MockAdapter{
		responses:       responses,
		errors:          make(map[string]error),
		delays:          make(map[string]time.Duration),
		defaultResponse: defaultResponse,
	}
}

// Respond sets the content returned for model.
func (a *MockAdapter) Respond(model, content string) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[model] = content
	return a
}

// Fail makes every call for model return err.
func (a *MockAdapter) Fail(model string, err error) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors[model] = err
	return a
}

// Delay makes calls for model block for d or until the context ends.
func (a *MockAdapter) Delay(model string, d time.Duration) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delays[model] = d
	return a
}

// Calls returns a copy of the requests received so far.
func (a *MockAdapter) Calls() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Request, len(a.calls))
	copy(out, a.calls)
	return out
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Generate returns a deterministic artifact for the request.
func (a *MockAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	delay := a.delays[req.Model]
	failure := a.errors[req.Model]
	response, ok := a.responses[req.Model]
	a.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if failure != nil {
		return nil, failure
	}

	prompt := Prompt(req.Messages)
	if !ok {
		last := ""
		if n := len(req.Messages); n > 0 {
			last = req.Messages[n-1].Content
		}
		response = fmt.Sprintf("%s\n%s", a.defaultResponse, last)
	}
	art := artifact.New(response, a.Name(), req.Model, prompt)
	return &Response{Artifact: art, Usage: a.Usage}, nil
}
