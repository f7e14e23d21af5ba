package router

import (
	"fmt"

	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// Rule names, in precedence order.
const (
	RuleLongContextLarge  = "long_context_large"
	RuleLongContextMedium = "long_context_medium"
	RuleIntentCode        = "intent_code"
	RuleIntentReasoning   = "intent_reasoning"
	RuleGeneral           = "general"
)

// Rule maps a predicate over (descriptor, input length) to a backend.
type Rule struct {
	Name        string
	Backend     string
	Description string
	match       func(d schema.TaskDescriptor, inputLength int) bool
}

// Selector evaluates an ordered rule table. It performs no I/O and holds no
// mutable state, so Select is a pure function of its arguments.
type Selector struct {
	rules []Rule
}

// NewSelector compiles the rule table from a policy. Long-context rules are
// omitted when their backends are not registered. The final rule always
// matches, so Select always returns a backend.
func NewSelector(p Policy, reg *registry.Registry) (*Selector, error) {
	for role, id := range map[string]string{"code": p.Code, "reasoning": p.Reasoning, "general": p.General} {
		if id == "" || !reg.Has(id) {
			return nil, fmt.Errorf("route %s: backend %q is not registered", role, id)
		}
	}

	large := p.LargeContext
	if large != "" && !reg.Has(large) {
		large = ""
	}
	medium := p.MediumContext
	if medium != "" && !reg.Has(medium) {
		medium = ""
	}
	if medium == "" {
		medium = large
	}

	var rules []Rule
	if large != "" {
		threshold := p.LargeThreshold
		rules = append(rules, Rule{
			Name:        RuleLongContextLarge,
			Backend:     large,
			Description: fmt.Sprintf("input > %d chars", threshold),
			match: func(_ schema.TaskDescriptor, n int) bool {
				return n > threshold
			},
		})
	}
	if medium != "" {
		threshold := p.Threshold
		rules = append(rules, Rule{
			Name:        RuleLongContextMedium,
			Backend:     medium,
			Description: fmt.Sprintf("input > %d chars", threshold),
			match: func(_ schema.TaskDescriptor, n int) bool {
				return n > threshold
			},
		})
	}
	rules = append(rules,
		Rule{
			Name:        RuleIntentCode,
			Backend:     p.Code,
			Description: "intent = code",
			match:       intentIs(schema.IntentCode),
		},
		Rule{
			Name:        RuleIntentReasoning,
			Backend:     p.Reasoning,
			Description: "intent = reasoning",
			match:       intentIs(schema.IntentReasoning),
		},
		Rule{
			Name:        RuleGeneral,
			Backend:     p.General,
			Description: "otherwise",
			match:       func(schema.TaskDescriptor, int) bool { return true },
		},
	)

	return &Selector{rules: rules}, nil
}

func intentIs(intent schema.Intent) func(schema.TaskDescriptor, int) bool {
	return func(d schema.TaskDescriptor, _ int) bool {
		return d.Intent == intent
	}
}

// Select returns the first matching rule's backend. Mode is recorded only.
func (s *Selector) Select(d schema.TaskDescriptor, inputLength int, mode schema.Mode) Selection {
	for _, rule := range s.rules {
		if rule.match(d, inputLength) {
			return Selection{
				BackendID:   rule.Backend,
				Rule:        rule.Name,
				Reason:      rule.Description,
				Intent:      d.Intent,
				InputLength: inputLength,
				Mode:        mode,
			}
		}
	}
	// Unreachable: the general rule always matches.
	last := s.rules[len(s.rules)-1]
	return Selection{BackendID: last.Backend, Rule: last.Name, Reason: last.Description, Intent: d.Intent, InputLength: inputLength, Mode: mode}
}

// Rules returns the compiled table in precedence order.
func (s *Selector) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}
