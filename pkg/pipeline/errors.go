package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// RunError is returned by Engine.Run for every failure after validation.
// Partial carries whatever the pipeline produced before it stopped.
type RunError struct {
	Kind    string
	Message string
	Err     error
	Partial *schema.Response
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func abortError(ctx context.Context, stage string, partial *schema.Response) *RunError {
	kind := schema.ErrCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = schema.ErrDeadlineExceeded
	}
	return &RunError{
		Kind:    kind,
		Message: "request aborted before " + stage,
		Err:     ctx.Err(),
		Partial: partial,
	}
}

func providerRunError(err error, partial *schema.Response) *RunError {
	kind := schema.ErrProviderAPI
	var perr *adapter.ProviderError
	if errors.As(err, &perr) {
		kind = string(perr.Kind)
	}
	return &RunError{
		Kind:    kind,
		Message: "fallback backend failed",
		Err:     err,
		Partial: partial,
	}
}

// Describe converts any error leaving the engine, or raised before it ran,
// into the wire error shape.
func Describe(err error) schema.ErrorResponse {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return schema.ErrorResponse{
			Error:   schema.ErrValidation,
			Message: verr.Error(),
			Details: map[string]any{"field": verr.Field},
		}
	}

	var cerr *config.ConfigurationError
	if errors.As(err, &cerr) {
		details := map[string]any{}
		if len(cerr.Missing) > 0 {
			details["missing"] = cerr.Missing
		}
		if len(cerr.Problems) > 0 {
			details["problems"] = cerr.Problems
		}
		return schema.ErrorResponse{Error: schema.ErrConfiguration, Message: cerr.Error(), Details: details}
	}

	var rerr *RunError
	if errors.As(err, &rerr) {
		resp := schema.ErrorResponse{Error: rerr.Kind, Message: rerr.Error()}
		if p := rerr.Partial; p != nil {
			resp.Details = map[string]any{
				"run_id":     p.RunID,
				"trace":      p.Trace,
				"scoreboard": p.Scoreboard,
				"task_spec":  p.TaskSpec,
			}
		}
		return resp
	}

	var perr *adapter.ProviderError
	if errors.As(err, &perr) {
		return schema.ErrorResponse{
			Error:   string(perr.Kind),
			Message: perr.Error(),
			Details: map[string]any{"backend": perr.Backend},
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return schema.ErrorResponse{Error: schema.ErrDeadlineExceeded, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return schema.ErrorResponse{Error: schema.ErrCanceled, Message: err.Error()}
	}
	return schema.ErrorResponse{Error: schema.ErrInternal, Message: err.Error()}
}
