package config

import "time"

// RoutingConfig names the backends each routing role resolves to.
type RoutingConfig struct {
	Classifier      string            `yaml:"classifier"`
	Routes          RouteTable        `yaml:"routes"`
	LongContext     LongContextConfig `yaml:"long_context"`
	Fallback        []string          `yaml:"fallback"`
	ProbeCandidates bool              `yaml:"probe_candidates,omitempty"`
}

// RouteTable maps intents to backend ids. Research requests use General.
type RouteTable struct {
	Code      string `yaml:"code"`
	Reasoning string `yaml:"reasoning"`
	General   string `yaml:"general"`
}

// LongContextConfig defines the input-size bands served by long-context
// backends. Thresholds are in characters.
type LongContextConfig struct {
	ThresholdChars      int    `yaml:"threshold_chars,omitempty"`
	LargeThresholdChars int    `yaml:"large_threshold_chars,omitempty"`
	Medium              string `yaml:"medium,omitempty"`
	Large               string `yaml:"large,omitempty"`
}

// BackendConfig is the YAML form of a registry entry.
type BackendConfig struct {
	ID           string        `yaml:"id"`
	Adapter      string        `yaml:"adapter"`
	Model        string        `yaml:"model"`
	Kind         string        `yaml:"kind,omitempty"`
	Tags         []string      `yaml:"tags,omitempty"`
	CostTier     string        `yaml:"cost_tier,omitempty"`
	ContextLimit int           `yaml:"context_limit,omitempty"`
	MaxOutput    int           `yaml:"max_output,omitempty"`
	Temperature  *float64      `yaml:"temperature,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// PricingConfig maps backend id -> pricing.
type PricingConfig map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

func floatPtr(v float64) *float64 { return &v }

// Default returns the built-in configuration. Every request-path role has a
// distinct backend so the fallback never repeats the failed backend.
func Default() *Config {
	cfg := &Config{
		Backends: []BackendConfig{
			{
				ID: "router", Adapter: "gradient", Model: "llama3-8b-instruct",
				Kind: "chat", CostTier: "low", ContextLimit: 32000,
				MaxOutput: 200, Temperature: floatPtr(0.1), Timeout: 30 * time.Second,
			},
			{
				ID: "coder", Adapter: "anthropic", Model: "claude-sonnet-4-20250514",
				Kind: "chat", Tags: []string{"code"}, CostTier: "high", ContextLimit: 600000,
				MaxOutput: 2000, Temperature: floatPtr(0.3), Timeout: 60 * time.Second,
			},
			{
				ID: "reasoner", Adapter: "deepseek", Model: "deepseek-reasoner",
				Kind: "chat", Tags: []string{"reasoning"}, CostTier: "med", ContextLimit: 256000,
				MaxOutput: 2000, Temperature: floatPtr(0.3), Timeout: 60 * time.Second,
			},
			{
				ID: "generalist", Adapter: "gradient", Model: "llama3.3-70b-instruct",
				Kind: "chat", Tags: []string{"general", "research"}, CostTier: "med", ContextLimit: 32000,
				MaxOutput: 2000, Temperature: floatPtr(0.3), Timeout: 60 * time.Second,
			},
			{
				ID: "fallback", Adapter: "openai", Model: "gpt-4o",
				Kind: "chat", Tags: []string{"code", "reasoning", "research", "general"}, CostTier: "high", ContextLimit: 400000,
				MaxOutput: 2000, Temperature: floatPtr(0.3), Timeout: 60 * time.Second,
			},
			{
				ID: "gemini-flash", Adapter: "google", Model: "gemini-2.5-flash",
				Kind: "long_context", CostTier: "low", ContextLimit: 4000000,
				MaxOutput: 8000, Temperature: floatPtr(0.3), Timeout: 90 * time.Second,
			},
			{
				ID: "gemini-pro", Adapter: "google", Model: "gemini-2.5-pro",
				Kind: "long_context", CostTier: "high", ContextLimit: 4000000,
				MaxOutput: 8000, Temperature: floatPtr(0.3), Timeout: 90 * time.Second,
			},
			// Never routed to; listed on research scoreboards and served by /infer.
			{
				ID: "sonar", Adapter: "perplexity", Model: "sonar-pro",
				Kind: "search", Tags: []string{"research"}, CostTier: "med", ContextLimit: 800000,
				MaxOutput: 2000, Temperature: floatPtr(0.2), Timeout: 60 * time.Second,
			},
		},
		Routing: RoutingConfig{
			Classifier: "router",
			Routes: RouteTable{
				Code:      "coder",
				Reasoning: "reasoner",
				General:   "generalist",
			},
			LongContext: LongContextConfig{
				ThresholdChars:      10000,
				LargeThresholdChars: 40000,
				Medium:              "gemini-flash",
				Large:               "gemini-pro",
			},
			Fallback: []string{"fallback", "generalist"},
		},
		Search: SearchConfig{
			Provider:   "perplexity",
			MaxResults: 5,
		},
		Timeouts: TimeoutConfig{
			Request:    120 * time.Second,
			Classifier: 30 * time.Second,
			Probe:      10 * time.Second,
		},
		Pricing: PricingConfig{
			"coder":    {PromptPer1K: 0.003, CompletionPer1K: 0.015},
			"fallback": {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
			"reasoner": {PromptPer1K: 0.00055, CompletionPer1K: 0.00219},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	lc := &cfg.Routing.LongContext
	if lc.ThresholdChars == 0 {
		lc.ThresholdChars = 10000
	}
	if lc.LargeThresholdChars == 0 {
		lc.LargeThresholdChars = 4 * lc.ThresholdChars
	}
	if lc.LargeThresholdChars < lc.ThresholdChars {
		lc.LargeThresholdChars = lc.ThresholdChars
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 5
	}
	if cfg.Timeouts.Request == 0 {
		cfg.Timeouts.Request = 120 * time.Second
	}
	if cfg.Timeouts.Classifier == 0 {
		cfg.Timeouts.Classifier = 30 * time.Second
	}
	if cfg.Timeouts.Probe == 0 {
		cfg.Timeouts.Probe = 10 * time.Second
	}
	if cfg.Pricing == nil {
		cfg.Pricing = PricingConfig{}
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Kind == "" {
			b.Kind = "chat"
		}
		if b.CostTier == "" {
			b.CostTier = "med"
		}
		if b.MaxOutput == 0 {
			b.MaxOutput = 2000
			if b.Kind == "long_context" {
				b.MaxOutput = 8000
			}
		}
		if b.Temperature == nil {
			b.Temperature = floatPtr(0.3)
		}
		if b.Timeout == 0 {
			b.Timeout = 60 * time.Second
			if b.Kind == "long_context" {
				b.Timeout = 90 * time.Second
			}
		}
	}
}
