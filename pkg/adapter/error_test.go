package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNewProviderErrorClassifiesTimeouts(t *testing.T) {
	cases := []error{
		context.DeadlineExceeded,
		fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
		timeoutErr{},
	}
	for _, err := range cases {
		pe := NewProviderError("coder", err)
		if pe.Kind != KindTimeout {
			t.Fatalf("expected timeout kind for %v, got %s", err, pe.Kind)
		}
	}
}

func TestNewProviderErrorCarriesStatus(t *testing.T) {
	pe := NewProviderError("coder", withStatus(errors.New("boom"), 503))
	if pe.Kind != KindAPI {
		t.Fatalf("expected api kind, got %s", pe.Kind)
	}
	if pe.Status != 503 {
		t.Fatalf("expected status 503, got %d", pe.Status)
	}
	if !IsTransient(pe) {
		t.Fatalf("503 should be transient")
	}
}

func TestNewProviderErrorIsIdempotent(t *testing.T) {
	first := NewProviderError("a", errors.New("x"))
	second := NewProviderError("b", fmt.Errorf("again: %w", first))
	if second != first {
		t.Fatalf("expected existing ProviderError to be reused")
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Fatalf("nil is not transient")
	}
	if IsTransient(context.Canceled) {
		t.Fatalf("cancellation is not transient")
	}
	if IsTransient(withStatus(errors.New("bad request"), 400)) {
		t.Fatalf("400 is not transient")
	}
	if !IsTransient(withStatus(errors.New("slow down"), 429)) {
		t.Fatalf("429 is transient")
	}
}
