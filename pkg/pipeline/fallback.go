package pipeline

import (
	"context"
	"fmt"
)

// State is a Controller state.
type State string

const (
	StateExecute         State = "EXECUTE"
	StateVerify          State = "VERIFY"
	StateFallbackExecute State = "FALLBACK_EXECUTE"
	StateFallbackVerify  State = "FALLBACK_VERIFY"
	StateDone            State = "DONE"
)

// Attempt is one execution and its verification.
type Attempt struct {
	BackendID string
	Fallback  bool
	Execution *Execution
	Err       error
	Passed    bool
	Notes     []string
}

// ExecFunc runs a backend. It may return a partial Execution with an error.
type ExecFunc func(ctx context.Context, backendID string, fallback bool) (*Execution, error)

// VerifyFunc judges an attempt. It is called for failed executions too.
type VerifyFunc func(ctx context.Context, attempt *Attempt) (bool, []string)

// Controller runs one attempt and, if it fails verification, exactly one
// attempt against an alternate backend. The alternate is the first entry of
// Alternates that differs from the failed backend.
type Controller struct {
	Alternates []string
}

// Alternate returns the backend to use after failed fails.
func (c Controller) Alternate(failed string) (string, bool) {
	for _, id := range c.Alternates {
		if id != "" && id != failed {
			return id, true
		}
	}
	return "", false
}

// Run drives the state machine from EXECUTE to DONE. observe, if non-nil,
// sees every state entered. The returned attempts are in execution order;
// the last one is the result. Run returns an error only when ctx ends
// between states or no alternate exists.
func (c Controller) Run(ctx context.Context, primary string, exec ExecFunc, verify VerifyFunc, observe func(State)) ([]Attempt, error) {
	var attempts []Attempt
	var current *Attempt
	state := StateExecute

	for state != StateDone {
		if observe != nil {
			observe(state)
		}

		switch state {
		case StateExecute, StateFallbackExecute:
			fallback := state == StateFallbackExecute
			backendID := primary
			if fallback {
				alt, ok := c.Alternate(primary)
				if !ok {
					return attempts, fmt.Errorf("no fallback backend distinct from %s", primary)
				}
				backendID = alt
			}
			execution, err := exec(ctx, backendID, fallback)
			attempts = append(attempts, Attempt{BackendID: backendID, Fallback: fallback, Execution: execution, Err: err})
			current = &attempts[len(attempts)-1]
			if fallback {
				state = StateFallbackVerify
			} else {
				state = StateVerify
			}

		case StateVerify, StateFallbackVerify:
			current.Passed, current.Notes = verify(ctx, current)
			switch {
			case state == StateFallbackVerify:
				state = StateDone
			case current.Passed:
				state = StateDone
			default:
				state = StateFallbackExecute
			}
		}

		if state != StateDone && ctx.Err() != nil {
			return attempts, ctx.Err()
		}
	}

	if observe != nil {
		observe(StateDone)
	}
	return attempts, nil
}
