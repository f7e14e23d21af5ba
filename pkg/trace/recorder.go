// Package trace records what happened to a request, step by step, and
// summarizes the candidate backends into a scoreboard.
package trace

import (
	"sync"
	"time"

	"github.com/zen-systems/switchboard/pkg/schema"
)

// Observer receives every step as it begins and as it is recorded. Begin
// notifications carry StatusActive and are never stored.
type Observer interface {
	OnStep(step schema.TraceStep)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step schema.TraceStep)

func (f ObserverFunc) OnStep(step schema.TraceStep) { f(step) }

// Recorder is an append-only list of trace steps.
type Recorder struct {
	mu        sync.Mutex
	steps     []schema.TraceStep
	observers []Observer
	now       func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder(observers ...Observer) *Recorder {
	return &Recorder{observers: observers, now: time.Now}
}

// Begin announces that a step has started. It returns the start time to
// pass back in the completed step.
func (r *Recorder) Begin(name, backendID string) time.Time {
	started := r.now()
	step := schema.TraceStep{
		Seq:       r.Len() + 1,
		StepName:  name,
		BackendID: backendID,
		Status:    schema.StatusActive,
		StartedAt: started,
	}
	r.notify(step)
	return started
}

// Append records a completed step and returns it with its sequence number.
func (r *Recorder) Append(step schema.TraceStep) schema.TraceStep {
	r.mu.Lock()
	step.Seq = len(r.steps) + 1
	step.Payload = clonePayload(step.Payload)
	r.steps = append(r.steps, step)
	r.mu.Unlock()

	r.notify(step)
	return step
}

// Complete is shorthand for appending a step that started at started.
func (r *Recorder) Complete(name, backendID string, started time.Time, status schema.StepStatus, payload map[string]any) schema.TraceStep {
	return r.Append(schema.TraceStep{
		StepName:  name,
		BackendID: backendID,
		LatencyMs: r.now().Sub(started).Milliseconds(),
		Status:    status,
		StartedAt: started,
		Payload:   payload,
	})
}

// Steps returns a copy of the recorded steps.
func (r *Recorder) Steps() []schema.TraceStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.TraceStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// Len returns the number of recorded steps.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

func (r *Recorder) notify(step schema.TraceStep) {
	for _, o := range r.observers {
		o.OnStep(step)
	}
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
