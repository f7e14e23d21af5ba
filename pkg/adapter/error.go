package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Status int
	Err    error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("adapter error (status=%d)", e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind separates timeouts from every other provider failure.
type ErrorKind string

const (
	KindTimeout ErrorKind = "provider_timeout"
	KindAPI     ErrorKind = "provider_api_error"
)

// ProviderError is the only error type returned by Dispatcher.Call.
type ProviderError struct {
	Kind    ErrorKind
	Backend string
	Status  int
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend %s (status=%d): %v", e.Kind, e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: backend %s: %v", e.Kind, e.Backend, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *ProviderError) Timeout() bool {
	return e.Kind == KindTimeout
}

// NewProviderError classifies err for backend.
func NewProviderError(backend string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	out := &ProviderError{Kind: KindAPI, Backend: backend, Err: err}
	if isTimeout(err) {
		out.Kind = KindTimeout
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		out.Status = adapterErr.Status
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether an error would likely succeed on another try.
// It is recorded on the execute step; the executor itself never retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}

func withStatus(err error, status int) error {
	return &AdapterError{Status: status, Err: err}
}
