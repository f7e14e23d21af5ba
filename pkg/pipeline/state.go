package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/search"
	"github.com/zen-systems/switchboard/pkg/trace"
)

// RequestState is created per request and discarded once the response is
// serialized. Only the engine goroutine writes to it.
type RequestState struct {
	RunID          string
	Request        schema.Request
	Started        time.Time
	Classification router.Classification
	Descriptor     schema.TaskDescriptor
	Selection      router.Selection
	Attempts       []Attempt
	Recorder       *trace.Recorder

	costs *costTracker

	searchOnce sync.Once
	search     searchOutcome
}

type searchOutcome struct {
	provider string
	results  []search.Result
	latency  time.Duration
	err      error
}

func newRequestState(runID string, req schema.Request, started time.Time, rec *trace.Recorder, costs *costTracker) *RequestState {
	return &RequestState{
		RunID:      runID,
		Request:    req,
		Started:    started,
		Descriptor: schema.DefaultTaskDescriptor(),
		Recorder:   rec,
		costs:      costs,
	}
}

// lookup runs the search at most once per request. A fallback execution
// sees the same results as the primary.
func (s *RequestState) lookup(ctx context.Context, src search.Source, maxResults int) searchOutcome {
	s.searchOnce.Do(func() {
		started := time.Now()
		s.search.provider = src.Name()
		s.search.results, s.search.err = src.Query(ctx, s.Request.Input, maxResults)
		s.search.latency = time.Since(started)
	})
	return s.search
}

// sources returns the consulted sources formatted for the response.
func (s *RequestState) sources() []string {
	if len(s.search.results) == 0 {
		return nil
	}
	return search.FormatSources(s.search.results)
}

func (s *RequestState) executions() []trace.Execution {
	out := make([]trace.Execution, 0, len(s.Attempts))
	for i, a := range s.Attempts {
		role := "primary"
		if a.Fallback {
			role = "fallback"
		}
		exec := trace.Execution{
			BackendID: a.BackendID,
			Role:      role,
			Err:       a.Err,
			Verified:  a.Passed,
			Winner:    i == len(s.Attempts)-1 && a.Err == nil,
		}
		if a.Execution != nil {
			exec.Latency = a.Execution.Latency
		}
		out = append(out, exec)
	}
	return out
}
