package router

import "github.com/zen-systems/switchboard/pkg/schema"

// Selection captures which backend was chosen and why.
type Selection struct {
	BackendID   string        `json:"backend_id"`
	Rule        string        `json:"rule"`
	Reason      string        `json:"reason"`
	Intent      schema.Intent `json:"intent"`
	InputLength int           `json:"input_length"`
	Mode        schema.Mode   `json:"mode"`
}

// Payload renders the selection for a trace step.
func (s Selection) Payload() map[string]any {
	return map[string]any{
		"rule":         s.Rule,
		"reason":       s.Reason,
		"intent":       string(s.Intent),
		"input_length": s.InputLength,
		"mode":         string(s.Mode),
	}
}

// Payload renders the classification for a trace step.
func (c Classification) Payload() map[string]any {
	p := map[string]any{
		"outcome":   string(c.Outcome),
		"task_spec": c.Descriptor,
	}
	if c.Reason != "" {
		p["reason"] = c.Reason
	}
	if c.Repaired {
		p["repaired"] = true
	}
	return p
}
