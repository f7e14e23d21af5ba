package gate

import (
	"encoding/json"
	"strings"
)

// TextGate requires a non-empty answer.
type TextGate struct{}

func (TextGate) Name() string { return "text" }

func (TextGate) Evaluate(content string) *GateResult {
	if strings.TrimSpace(content) == "" {
		return NewFailingResult(Violation{Rule: "non_empty", Severity: "error", Message: "Empty response"})
	}
	return NewPassingResult("Non-empty response")
}

// JSONGate requires the answer to parse as JSON. A single surrounding
// markdown code fence is tolerated.
type JSONGate struct{}

func (JSONGate) Name() string { return "json" }

func (JSONGate) Evaluate(content string) *GateResult {
	body, fenced := unfence(content)
	if body == "" {
		return NewFailingResult(Violation{Rule: "json_parse", Severity: "error", Message: "Invalid JSON: empty response"})
	}

	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return NewFailingResult(Violation{Rule: "json_parse", Severity: "error", Message: "Invalid JSON: " + err.Error()})
	}
	if fenced {
		return NewPassingResult("Valid JSON", "stripped code fence")
	}
	return NewPassingResult("Valid JSON")
}

// unfence removes one ```lang ... ``` wrapper if the whole answer is fenced.
func unfence(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") || !strings.HasSuffix(content, "```") || len(content) < 6 {
		return content, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		inner = inner[nl+1:]
	} else {
		return content, false
	}
	return strings.TrimSpace(inner), true
}
