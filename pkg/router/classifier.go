package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/schema"
)

const (
	classifierMaxOutput   = 200
	classifierTemperature = 0.1
)

// Outcome tags how a Classification was produced.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeDefault Outcome = "default"
)

// Classification is the tagged result of Classify: either a parsed
// descriptor or the default descriptor together with the reason.
type Classification struct {
	Descriptor schema.TaskDescriptor
	Outcome    Outcome
	Reason     string
	Repaired   bool
	BackendID  string
	Latency    time.Duration
	Usage      adapter.Usage
}

// OK reports whether the descriptor came from the model.
func (c Classification) OK() bool {
	return c.Outcome == OutcomeOK
}

// Classifier asks a small, fast backend to describe the task.
type Classifier struct {
	provider  adapter.Provider
	backendID string
	timeout   time.Duration
}

// NewClassifier creates a classifier that calls backendID through provider.
func NewClassifier(provider adapter.Provider, backendID string, timeout time.Duration) *Classifier {
	return &Classifier{provider: provider, backendID: backendID, timeout: timeout}
}

// BackendID returns the classifier backend.
func (c *Classifier) BackendID() string {
	return c.backendID
}

// Classify never fails: provider errors, timeouts and unparseable output
// all produce the default descriptor with a reason.
func (c *Classifier) Classify(ctx context.Context, req schema.Request) Classification {
	result := Classification{
		Descriptor: schema.DefaultTaskDescriptor(),
		Outcome:    OutcomeDefault,
		BackendID:  c.backendID,
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []adapter.Message{
		{Role: adapter.RoleSystem, Content: classifierSystemPrompt},
		{Role: adapter.RoleUser, Content: fmt.Sprintf("Task type: %s\nUser input: %s", req.Task, req.Input)},
	}
	resp, err := c.provider.Call(callCtx, c.backendID, messages, classifierMaxOutput, classifierTemperature)
	if err != nil {
		result.Reason = fmt.Sprintf("classifier call failed: %v", err)
		return result
	}
	result.Latency = resp.Latency
	result.Usage = resp.Usage

	parsed, repaired, err := parseClassifierResponse(resp.Text)
	if err != nil {
		result.Reason = fmt.Sprintf("classifier response invalid: %v", err)
		return result
	}

	result.Descriptor = applyTaskHints(*parsed, req.Task)
	result.Outcome = OutcomeOK
	result.Repaired = repaired
	return result
}

// applyTaskHints folds the caller's task category into the descriptor.
func applyTaskHints(d schema.TaskDescriptor, task schema.Task) schema.TaskDescriptor {
	if task == schema.TaskResearch {
		d.NeedsExternalContext = true
	}
	if task == schema.TaskSolve && d.Intent == schema.IntentReasoning {
		d.NeedsExternalContext = true
	}
	return d
}

type classifierPick struct {
	Intent               string   `json:"intent"`
	Format               string   `json:"format"`
	ExpectedFormat       string   `json:"expected_format"`
	NeedsCitations       *bool    `json:"needs_citations"`
	NeedsExternalContext *bool    `json:"needs_external_context"`
	Confidence           *float64 `json:"confidence"`
}

// parseClassifierResponse accepts strict JSON, optionally fenced. Anything
// else is passed through jsonrepair once before giving up.
func parseClassifierResponse(content string) (*schema.TaskDescriptor, bool, error) {
	content = stripCodeFence(content)
	if content == "" {
		return nil, false, fmt.Errorf("empty response")
	}

	var pick classifierPick
	repaired := false
	if err := json.Unmarshal([]byte(content), &pick); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return nil, false, err
		}
		pick = classifierPick{}
		if err := json.Unmarshal([]byte(fixed), &pick); err != nil {
			return nil, false, err
		}
		repaired = true
	}

	d, err := pick.descriptor()
	if err != nil {
		return nil, repaired, err
	}
	return d, repaired, nil
}

func (p classifierPick) descriptor() (*schema.TaskDescriptor, error) {
	intent := schema.Intent(strings.ToLower(strings.TrimSpace(p.Intent)))
	if !intent.Valid() {
		return nil, fmt.Errorf("unknown intent %q", p.Intent)
	}

	rawFormat := p.ExpectedFormat
	if rawFormat == "" {
		rawFormat = p.Format
	}
	format := schema.Format(strings.ToLower(strings.TrimSpace(rawFormat)))
	if format == "" {
		format = schema.FormatText
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unknown format %q", rawFormat)
	}

	d := &schema.TaskDescriptor{Intent: intent, ExpectedFormat: format}
	switch {
	case p.NeedsExternalContext != nil:
		d.NeedsExternalContext = *p.NeedsExternalContext
	case p.NeedsCitations != nil:
		d.NeedsExternalContext = *p.NeedsCitations
	}
	if p.Confidence != nil {
		d.Confidence = schema.ClampConfidence(*p.Confidence)
	}
	return d, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	} else {
		content = strings.TrimPrefix(content, "json")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

const classifierSystemPrompt = `You are a task classifier for an AI routing system.
Analyze the user's request and respond with ONLY a JSON object, no prose:
{
  "intent": "code" | "reasoning" | "research" | "general",
  "format": "text" | "json" | "diff",
  "needs_citations": true | false,
  "confidence": 0.0-1.0
}

Guidelines:
- intent=code: programming, debugging, writing or modifying code
- intent=reasoning: math, logic, multi-step problem solving, analysis
- intent=research: needs facts, current information or sources
- intent=general: summarization, rewriting, general questions
- format=diff: the user wants changes expressed as a patch
- format=json: the user wants structured data
- needs_citations: true if the answer must reference external sources`
