package schema

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// === Enumerations ===

// Intent is the classified purpose of a request.
type Intent string

const (
	IntentCode      Intent = "code"
	IntentReasoning Intent = "reasoning"
	IntentResearch  Intent = "research"
	IntentGeneral   Intent = "general"
)

// Intents lists every intent in a stable order.
var Intents = []Intent{IntentCode, IntentReasoning, IntentResearch, IntentGeneral}

func (i Intent) Valid() bool {
	switch i {
	case IntentCode, IntentReasoning, IntentResearch, IntentGeneral:
		return true
	}
	return false
}

// Format is the shape the answer is expected to take.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatDiff Format = "diff"
)

func (f Format) Valid() bool {
	switch f {
	case FormatText, FormatJSON, FormatDiff:
		return true
	}
	return false
}

// Mode is the caller's quality/speed/cost preference. It is recorded but
// does not influence selection.
type Mode string

const (
	ModeBest  Mode = "best"
	ModeFast  Mode = "fast"
	ModeCheap Mode = "cheap"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeBest, ModeFast, ModeCheap:
		return true
	}
	return false
}

// Task is the caller-supplied task category.
type Task string

const (
	TaskSummarize Task = "summarize"
	TaskResearch  Task = "research"
	TaskSolve     Task = "solve"
	TaskCode      Task = "code"
	TaskRewrite   Task = "rewrite"
)

// Tasks lists every accepted task category.
var Tasks = []Task{TaskSummarize, TaskResearch, TaskSolve, TaskCode, TaskRewrite}

func (t Task) Valid() bool {
	switch t {
	case TaskSummarize, TaskResearch, TaskSolve, TaskCode, TaskRewrite:
		return true
	}
	return false
}

// CostTier is the relative price band of a backend.
type CostTier string

const (
	CostLow    CostTier = "low"
	CostMedium CostTier = "med"
	CostHigh   CostTier = "high"
)

func (c CostTier) Valid() bool {
	switch c {
	case CostLow, CostMedium, CostHigh:
		return true
	}
	return false
}

// === Task descriptor ===

// TaskDescriptor is produced once per request by classification and is
// immutable afterwards.
type TaskDescriptor struct {
	Intent               Intent  `json:"intent"`
	ExpectedFormat       Format  `json:"expected_format"`
	NeedsExternalContext bool    `json:"needs_external_context"`
	Confidence           float64 `json:"confidence"`
}

// DefaultTaskDescriptor is used whenever classification cannot produce a
// usable descriptor.
func DefaultTaskDescriptor() TaskDescriptor {
	return TaskDescriptor{
		Intent:         IntentGeneral,
		ExpectedFormat: FormatText,
		Confidence:     0,
	}
}

// ClampConfidence bounds a confidence value to [0,1]. NaN maps to 0.
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// === Wire contract ===

// Request is the inbound request body.
type Request struct {
	Task  Task   `json:"task"`
	Input string `json:"input"`
	Mode  Mode   `json:"mode,omitempty"`
}

// ValidationError reports a malformed request. No pipeline runs for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Normalize fills optional fields with their defaults.
func (r *Request) Normalize() {
	r.Task = Task(strings.ToLower(strings.TrimSpace(string(r.Task))))
	r.Mode = Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	if r.Mode == "" {
		r.Mode = ModeBest
	}
}

// Validate checks the request against the wire contract.
func (r Request) Validate() error {
	if r.Task == "" {
		return &ValidationError{Field: "task", Message: "is required"}
	}
	if !r.Task.Valid() {
		return &ValidationError{Field: "task", Message: fmt.Sprintf("unknown task %q", r.Task)}
	}
	if strings.TrimSpace(r.Input) == "" {
		return &ValidationError{Field: "input", Message: "must not be empty"}
	}
	if r.Mode != "" && !r.Mode.Valid() {
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	return nil
}

// Usage is summed token usage across backend calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the successful pipeline result.
type Response struct {
	RunID       string            `json:"run_id"`
	Final       string            `json:"final"`
	WinnerModel string            `json:"winner_model"`
	Verified    bool              `json:"verified"`
	Mode        Mode              `json:"mode"`
	TaskSpec    TaskDescriptor    `json:"task_spec"`
	Scoreboard  []ScoreboardEntry `json:"scoreboard"`
	Trace       []TraceStep       `json:"trace"`
	Sources     []string          `json:"sources,omitempty"`
	Usage       Usage             `json:"usage"`
}

// ErrorResponse is the error body returned by every surface.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error kinds carried in ErrorResponse.Error.
const (
	ErrValidation       = "validation_error"
	ErrConfiguration    = "configuration_error"
	ErrProviderTimeout  = "provider_timeout"
	ErrProviderAPI      = "provider_api_error"
	ErrDeadlineExceeded = "deadline_exceeded"
	ErrCanceled         = "canceled"
	ErrInternal         = "internal_error"
)

// === Trace ===

type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusActive   StepStatus = "active"
	StatusComplete StepStatus = "complete"
	StatusError    StepStatus = "error"
)

// Stage names in the order a request can visit them.
const (
	StepClassify        = "classify"
	StepChoose          = "choose"
	StepExecute         = "execute"
	StepVerify          = "verify"
	StepFallbackExecute = "fallback_execute"
	StepFallbackVerify  = "fallback_verify"
)

// TraceStep is one recorded stage. Steps are append-only.
type TraceStep struct {
	Seq       int            `json:"seq"`
	StepName  string         `json:"step_name"`
	BackendID string         `json:"backend_id,omitempty"`
	LatencyMs int64          `json:"latency_ms"`
	Status    StepStatus     `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ScoreboardEntry describes one candidate backend for the request.
type ScoreboardEntry struct {
	BackendID       string   `json:"backend_id"`
	QualityEstimate float64  `json:"quality_estimate"`
	LatencyMs       int64    `json:"latency_ms"`
	CostTier        CostTier `json:"cost_tier"`
	Executed        bool     `json:"executed"`
	Notes           string   `json:"notes,omitempty"`
}
