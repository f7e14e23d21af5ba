package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. It is built once at startup
// and passed to components as an immutable value.
type Config struct {
	Credentials Credentials
	Backends    []BackendConfig
	Routing     RoutingConfig
	Search      SearchConfig
	Timeouts    TimeoutConfig
	Pricing     PricingConfig
	ConfigDir   string
}

// FileConfig represents the structure of ~/.switchboard/config.yaml.
// Credentials are never read from the file.
type FileConfig struct {
	Backends []BackendConfig `yaml:"backends,omitempty"`
	Routing  RoutingConfig   `yaml:"routing,omitempty"`
	Search   SearchConfig    `yaml:"search,omitempty"`
	Timeouts TimeoutConfig   `yaml:"timeouts,omitempty"`
	Pricing  PricingConfig   `yaml:"pricing,omitempty"`
}

// SearchConfig selects the external search source used for augmentation.
type SearchConfig struct {
	Provider   string `yaml:"provider,omitempty"`
	MaxResults int    `yaml:"max_results,omitempty"`
}

// TimeoutConfig holds request-scoped deadlines.
type TimeoutConfig struct {
	Request    time.Duration `yaml:"request,omitempty"`
	Classifier time.Duration `yaml:"classifier,omitempty"`
	Probe      time.Duration `yaml:"probe,omitempty"`
}

// Credentials are read from the environment only.
type Credentials struct {
	GradientKey     string
	GradientBaseURL string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	PerplexityKey   string
	TavilyAPIKey    string
}

// credentialEnv maps adapter names to the environment variable holding their key.
var credentialEnv = map[string]string{
	"gradient":   "MODEL_ACCESS_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"perplexity": "PERPLEXITY_API_KEY",
	"tavily":     "TAVILY_API_KEY",
}

// EnvVar returns the environment variable that holds the key for adapter.
func EnvVar(adapter string) string {
	return credentialEnv[adapter]
}

// LoadCredentials reads credentials from the environment.
func LoadCredentials() Credentials {
	return Credentials{
		GradientKey:     os.Getenv("MODEL_ACCESS_KEY"),
		GradientBaseURL: os.Getenv("GRADIENT_BASE_URL"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		PerplexityKey:   os.Getenv("PERPLEXITY_API_KEY"),
		TavilyAPIKey:    os.Getenv("TAVILY_API_KEY"),
	}
}

// Key returns the credential for the named adapter or search provider.
func (c Credentials) Key(name string) string {
	switch name {
	case "gradient":
		return c.GradientKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "google":
		return c.GoogleAPIKey
	case "deepseek":
		return c.DeepSeekAPIKey
	case "perplexity":
		return c.PerplexityKey
	case "tavily":
		return c.TavilyAPIKey
	default:
		return ""
	}
}

// HasAdapter returns true if the API key for the given adapter is configured.
// The mock adapter needs no key.
func (c Credentials) HasAdapter(name string) bool {
	if name == "mock" {
		return true
	}
	return c.Key(name) != ""
}

// Load reads ~/.switchboard/config.yaml (if present) and the environment.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return load(filepath.Join(configDir, "config.yaml"), configDir, false)
}

// LoadFile reads configuration from an explicit path, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, filepath.Dir(path), true)
}

func load(path, configDir string, mustExist bool) (*Config, error) {
	cfg := Default()
	cfg.ConfigDir = configDir
	cfg.Credentials = LoadCredentials()

	// Fields absent from the file keep their defaults.
	fileConfig := &FileConfig{
		Backends: cfg.Backends,
		Routing:  cfg.Routing,
		Search:   cfg.Search,
		Timeouts: cfg.Timeouts,
		Pricing:  cfg.Pricing,
	}
	if err := loadFileConfig(path, fileConfig); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.Backends = fileConfig.Backends
	cfg.Routing = fileConfig.Routing
	cfg.Search = fileConfig.Search
	cfg.Timeouts = fileConfig.Timeouts
	cfg.Pricing = fileConfig.Pricing

	applyDefaults(cfg)
	return cfg, nil
}

// UseMock points every backend at the in-process mock adapter.
func (c *Config) UseMock() {
	for i := range c.Backends {
		c.Backends[i].Adapter = "mock"
	}
	if c.Search.Provider != "" {
		c.Search.Provider = "none"
	}
}

// loadFileConfig reads the config file into dst.
func loadFileConfig(path string, dst *FileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("SWITCHBOARD_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".switchboard"), nil
}
