package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zen-systems/switchboard/pkg/registry"
)

const defaultMaxOutput = 2000

// Provider is the single call shape every stage uses to reach a backend.
type Provider interface {
	Call(ctx context.Context, backendID string, messages []Message, maxOutput int, temperature float64) (*Result, error)
}

// ErrNoResponse is returned when an adapter reports success without an
// artifact. Blank text is a valid response; verification rejects it.
var ErrNoResponse = errors.New("no response from adapter")

// Dispatcher resolves backend ids to adapters and models.
type Dispatcher struct {
	registry *registry.Registry
	adapters map[string]Adapter
	now      func() time.Time
}

// NewDispatcher checks that every registered backend has an adapter.
func NewDispatcher(reg *registry.Registry, adapters map[string]Adapter) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	for _, b := range reg.All() {
		if _, ok := adapters[b.Adapter]; !ok {
			return nil, fmt.Errorf("backend %s: no adapter named %q", b.ID, b.Adapter)
		}
	}
	return &Dispatcher{registry: reg, adapters: adapters, now: time.Now}, nil
}

// Call sends messages to backendID. A zero maxOutput uses the backend's
// default. Every failure is returned as a *ProviderError.
func (d *Dispatcher) Call(ctx context.Context, backendID string, messages []Message, maxOutput int, temperature float64) (*Result, error) {
	backend, ok := d.registry.Get(backendID)
	if !ok {
		return nil, &ProviderError{Kind: KindAPI, Backend: backendID, Err: fmt.Errorf("unknown backend")}
	}
	a := d.adapters[backend.Adapter]

	if maxOutput <= 0 {
		maxOutput = backend.MaxOutput
	}
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}

	callCtx := ctx
	if backend.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, backend.Timeout)
		defer cancel()
	}

	start := d.now()
	resp, err := a.Generate(callCtx, Request{
		Model:       backend.Model,
		Messages:    messages,
		MaxOutput:   maxOutput,
		Temperature: temperature,
	})
	latency := d.now().Sub(start)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, NewProviderError(backendID, err)
	}
	if resp == nil || resp.Artifact == nil {
		return nil, NewProviderError(backendID, ErrNoResponse)
	}

	result := &Result{
		BackendID: backendID,
		Text:      resp.Artifact.Content,
		Latency:   latency,
		Artifact:  resp.Artifact.WithMetadata("backend", backendID),
	}
	if resp.Usage != nil {
		result.Usage = *resp.Usage
	}
	return result, nil
}
