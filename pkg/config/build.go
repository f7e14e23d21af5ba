package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// ConfigurationError reports a startup problem: missing credentials or a
// routing table that references unknown backends. It is fatal.
type ConfigurationError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing credentials: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return "configuration error: " + strings.Join(parts, "; ")
}

// Resolved is the validated, startup-time view of the configuration.
type Resolved struct {
	Registry *registry.Registry
	Routing  RoutingConfig
	// Dropped lists optional backends omitted because their credential is missing.
	Dropped []string
}

// Build validates the configuration and constructs the backend registry.
// A backend is required when the classifier, an intent route or the
// fallback list references it; its credential must be present. Other
// backends (long context, search-augmented) are dropped when their key is
// missing, which disables the corresponding routing rule.
func Build(cfg *Config) (*Resolved, error) {
	required := cfg.Routing.requiredBackends()
	cerr := &ConfigurationError{}
	missing := map[string]bool{}

	var backends []registry.Backend
	var dropped []string
	for _, bc := range cfg.Backends {
		if !cfg.Credentials.HasAdapter(bc.Adapter) {
			if required[bc.ID] {
				env := EnvVar(bc.Adapter)
				if env == "" {
					cerr.Problems = append(cerr.Problems, fmt.Sprintf("backend %s: unknown adapter %q", bc.ID, bc.Adapter))
					continue
				}
				missing[env] = true
				continue
			}
			dropped = append(dropped, bc.ID)
			continue
		}
		b, err := bc.toBackend()
		if err != nil {
			cerr.Problems = append(cerr.Problems, err.Error())
			continue
		}
		backends = append(backends, b)
	}

	for env := range missing {
		cerr.Missing = append(cerr.Missing, env)
	}
	sort.Strings(cerr.Missing)
	if len(cerr.Missing) > 0 || len(cerr.Problems) > 0 {
		return nil, cerr
	}

	reg, err := registry.New(backends)
	if err != nil {
		return nil, &ConfigurationError{Problems: []string{err.Error()}}
	}

	routing := cfg.Routing
	routing.Fallback = append([]string(nil), cfg.Routing.Fallback...)
	if !reg.Has(routing.LongContext.Medium) {
		routing.LongContext.Medium = ""
	}
	if !reg.Has(routing.LongContext.Large) {
		routing.LongContext.Large = ""
	}

	if problems := validateRouting(routing, reg); len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}

	return &Resolved{Registry: reg, Routing: routing, Dropped: dropped}, nil
}

func (r RoutingConfig) requiredBackends() map[string]bool {
	req := map[string]bool{}
	for _, id := range []string{r.Classifier, r.Routes.Code, r.Routes.Reasoning, r.Routes.General} {
		if id != "" {
			req[id] = true
		}
	}
	for _, id := range r.Fallback {
		req[id] = true
	}
	return req
}

// targets returns every backend a request can be routed to first.
func (r RoutingConfig) targets() []string {
	out := []string{r.Routes.Code, r.Routes.Reasoning, r.Routes.General}
	if r.LongContext.Medium != "" {
		out = append(out, r.LongContext.Medium)
	}
	if r.LongContext.Large != "" {
		out = append(out, r.LongContext.Large)
	}
	return out
}

func validateRouting(r RoutingConfig, reg *registry.Registry) []string {
	var problems []string
	check := func(role, id string) {
		if id == "" {
			problems = append(problems, fmt.Sprintf("routing.%s is required", role))
			return
		}
		if !reg.Has(id) {
			problems = append(problems, fmt.Sprintf("routing.%s references unknown backend %q", role, id))
		}
	}
	check("classifier", r.Classifier)
	check("routes.code", r.Routes.Code)
	check("routes.reasoning", r.Routes.Reasoning)
	check("routes.general", r.Routes.General)

	if len(r.Fallback) == 0 {
		problems = append(problems, "routing.fallback must name at least one backend")
	}
	for _, id := range r.Fallback {
		check("fallback", id)
	}
	for _, target := range r.targets() {
		if target == "" {
			continue
		}
		hasAlternate := false
		for _, id := range r.Fallback {
			if id != target {
				hasAlternate = true
				break
			}
		}
		if !hasAlternate {
			problems = append(problems, fmt.Sprintf("routing.fallback has no backend distinct from %q", target))
		}
	}

	problems = append(problems, checkContextLimits(r.LongContext, reg)...)

	for _, intent := range schema.Intents {
		if len(reg.Tagged(intent)) == 0 {
			problems = append(problems, fmt.Sprintf("no backend is tagged for intent %q", intent))
		}
	}
	return problems
}

// checkContextLimits makes sure each long-context backend can hold the
// largest input its band routes to it. The large band is open-ended, so its
// backend must at least hold the band's lower bound. A zero limit is unknown.
func checkContextLimits(lc LongContextConfig, reg *registry.Registry) []string {
	var problems []string
	check := func(role, id, field string, chars int) {
		b, ok := reg.Get(id)
		if !ok || b.ContextLimit == 0 || b.ContextLimit >= chars {
			return
		}
		problems = append(problems, fmt.Sprintf("routing.long_context.%s (%d) exceeds context_limit %d of %s backend %q",
			field, chars, b.ContextLimit, role, id))
	}
	if lc.Medium != "" {
		if lc.Large != "" {
			check("medium", lc.Medium, "large_threshold_chars", lc.LargeThresholdChars)
		} else {
			check("medium", lc.Medium, "threshold_chars", lc.ThresholdChars)
		}
	}
	if lc.Large != "" {
		check("large", lc.Large, "large_threshold_chars", lc.LargeThresholdChars)
	}
	return problems
}

func (bc BackendConfig) toBackend() (registry.Backend, error) {
	b := registry.Backend{
		ID:           bc.ID,
		Adapter:      bc.Adapter,
		Model:        bc.Model,
		Kind:         registry.Kind(bc.Kind),
		CostTier:     schema.CostTier(bc.CostTier),
		ContextLimit: bc.ContextLimit,
		MaxOutput:    bc.MaxOutput,
		Timeout:      bc.Timeout,
	}
	if bc.Temperature != nil {
		b.Temperature = *bc.Temperature
	}
	switch b.Kind {
	case registry.KindChat, registry.KindLongContext, registry.KindSearch:
	default:
		return b, fmt.Errorf("backend %s: unknown kind %q", bc.ID, bc.Kind)
	}
	for _, tag := range bc.Tags {
		b.Tags = append(b.Tags, schema.Intent(tag))
	}
	return b, nil
}
