package schema

import (
	"errors"
	"math"
	"testing"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "ok", req: Request{Task: TaskCode, Input: "fix it", Mode: ModeFast}},
		{name: "mode optional", req: Request{Task: TaskSolve, Input: "2+2"}},
		{name: "missing task", req: Request{Input: "x"}, field: "task"},
		{name: "unknown task", req: Request{Task: "dance", Input: "x"}, field: "task"},
		{name: "blank input", req: Request{Task: TaskCode, Input: "  \n"}, field: "input"},
		{name: "unknown mode", req: Request{Task: TaskCode, Input: "x", Mode: "turbo"}, field: "mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestNormalizeDefaultsMode(t *testing.T) {
	req := Request{Task: " Code ", Input: "x"}
	req.Normalize()
	if req.Task != TaskCode {
		t.Fatalf("expected task normalized, got %q", req.Task)
	}
	if req.Mode != ModeBest {
		t.Fatalf("expected default mode best, got %q", req.Mode)
	}
}

func TestClampConfidence(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.42: 0.42, 1: 1, 7: 1, math.NaN(): 0}
	for in, want := range cases {
		if got := ClampConfidence(in); got != want {
			t.Fatalf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultTaskDescriptor(t *testing.T) {
	d := DefaultTaskDescriptor()
	if d.Intent != IntentGeneral || d.ExpectedFormat != FormatText || d.NeedsExternalContext || d.Confidence != 0 {
		t.Fatalf("unexpected default descriptor: %+v", d)
	}
}
