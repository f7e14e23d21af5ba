// Package gate checks a backend's answer against the shape the task asked
// for. Gates are cheap and local: they never call a model.
package gate

import "github.com/zen-systems/switchboard/pkg/schema"

// Gate defines the interface for format gates.
type Gate interface {
	// Evaluate checks an answer against the gate's criteria.
	Evaluate(content string) *GateResult

	// Name returns the gate identifier.
	Name() string
}

// GateResult contains the outcome of a gate evaluation.
type GateResult struct {
	Passed     bool        `json:"passed"`
	Notes      []string    `json:"notes,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// Violation describes a specific format problem.
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"` // "error", "warning"
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// NewPassingResult creates a result indicating the gate passed.
func NewPassingResult(notes ...string) *GateResult {
	return &GateResult{
		Passed: true,
		Notes:  notes,
	}
}

// NewFailingResult creates a result indicating the gate failed. Each
// violation message also becomes a note.
func NewFailingResult(violations ...Violation) *GateResult {
	notes := make([]string, 0, len(violations))
	for _, v := range violations {
		notes = append(notes, v.Message)
	}
	return &GateResult{
		Passed:     false,
		Notes:      notes,
		Violations: violations,
	}
}

// For returns the gate for an expected format. Unknown formats are checked
// as text.
func For(format schema.Format) Gate {
	switch format {
	case schema.FormatJSON:
		return JSONGate{}
	case schema.FormatDiff:
		return DiffGate{}
	default:
		return TextGate{}
	}
}

// Verify checks output against the descriptor's expected format.
func Verify(output string, d schema.TaskDescriptor) (bool, []string) {
	res := For(d.ExpectedFormat).Evaluate(output)
	return res.Passed, res.Notes
}
