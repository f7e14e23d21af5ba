package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/switchboard/pkg/schema"
)

var allCredentialEnv = []string{
	"MODEL_ACCESS_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY",
	"GEMINI_API_KEY", "DEEPSEEK_API_KEY", "PERPLEXITY_API_KEY", "TAVILY_API_KEY",
}

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, env := range allCredentialEnv {
		t.Setenv(env, "")
	}
}

func setAllCredentials(t *testing.T) {
	t.Helper()
	for _, env := range allCredentialEnv {
		t.Setenv(env, "key-"+env)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	t.Setenv("SWITCHBOARD_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigDir != filepath.Join(home, ".switchboard") {
		t.Fatalf("unexpected config dir %s", cfg.ConfigDir)
	}
	if cfg.Routing.Classifier != "router" || cfg.Routing.Routes.Code != "coder" {
		t.Fatalf("expected default routing, got %+v", cfg.Routing)
	}
	if cfg.Search.MaxResults != 5 {
		t.Fatalf("expected 5 search results, got %d", cfg.Search.MaxResults)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
routing:
  classifier: router
  routes:
    code: coder
    reasoning: reasoner
    general: generalist
  long_context:
    threshold_chars: 2000
  fallback: [fallback]
timeouts:
  request: 5s
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Routing.LongContext.ThresholdChars != 2000 {
		t.Fatalf("expected threshold override, got %d", cfg.Routing.LongContext.ThresholdChars)
	}
	if cfg.Routing.LongContext.LargeThresholdChars != 40000 {
		t.Fatalf("expected large threshold default to survive, got %d", cfg.Routing.LongContext.LargeThresholdChars)
	}
	if !reflect.DeepEqual(cfg.Routing.Fallback, []string{"fallback"}) {
		t.Fatalf("unexpected fallback list %v", cfg.Routing.Fallback)
	}
	if cfg.Timeouts.Request != 5*time.Second {
		t.Fatalf("expected 5s request timeout, got %s", cfg.Timeouts.Request)
	}
	if cfg.Timeouts.Classifier != 30*time.Second {
		t.Fatalf("expected classifier default, got %s", cfg.Timeouts.Classifier)
	}
	if len(cfg.Backends) != len(Default().Backends) {
		t.Fatalf("expected default backends to be kept")
	}
}

func TestLoadFileMissingIsError(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestConfigIgnoresFileAPIKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SWITCHBOARD_HOME", home)
	clearCredentials(t)

	data := []byte("api_keys:\n  anthropic: file-ant\n  openai: file-openai\n")
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Credentials.AnthropicAPIKey != "" || cfg.Credentials.OpenAIAPIKey != "" {
		t.Fatalf("expected file API keys to be ignored")
	}
}

func TestConfigUsesEnvAPIKeys(t *testing.T) {
	t.Setenv("SWITCHBOARD_HOME", t.TempDir())
	clearCredentials(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("MODEL_ACCESS_KEY", "env-do")
	t.Setenv("GEMINI_API_KEY", "env-gemini")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	creds := cfg.Credentials
	if creds.AnthropicAPIKey != "env-ant" || creds.GradientKey != "env-do" || creds.GoogleAPIKey != "env-gemini" {
		t.Fatalf("expected env API keys to be used, got %+v", creds)
	}
	if !creds.HasAdapter("gradient") || creds.HasAdapter("openai") || !creds.HasAdapter("mock") {
		t.Fatalf("unexpected HasAdapter results")
	}
}

func TestBuildMissingRequiredCredential(t *testing.T) {
	t.Setenv("SWITCHBOARD_HOME", t.TempDir())
	setAllCredentials(t)
	t.Setenv("MODEL_ACCESS_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = Build(cfg)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !reflect.DeepEqual(cerr.Missing, []string{"MODEL_ACCESS_KEY"}) {
		t.Fatalf("unexpected missing list %v", cerr.Missing)
	}
}

func TestBuildDropsOptionalBackends(t *testing.T) {
	t.Setenv("SWITCHBOARD_HOME", t.TempDir())
	setAllCredentials(t)
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PERPLEXITY_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	resolved, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !reflect.DeepEqual(resolved.Dropped, []string{"gemini-flash", "gemini-pro", "sonar"}) {
		t.Fatalf("unexpected dropped list %v", resolved.Dropped)
	}
	if resolved.Routing.LongContext.Medium != "" || resolved.Routing.LongContext.Large != "" {
		t.Fatalf("expected long-context routes to be disabled, got %+v", resolved.Routing.LongContext)
	}
	if resolved.Registry.Has("gemini-pro") {
		t.Fatalf("dropped backend still registered")
	}
}

func TestBuildRequiresDistinctFallback(t *testing.T) {
	cfg := Default()
	cfg.UseMock()
	cfg.Routing.Fallback = []string{"generalist"}

	_, err := Build(cfg)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestBuildRejectsUnknownRouteTarget(t *testing.T) {
	cfg := Default()
	cfg.UseMock()
	cfg.Routing.Routes.Code = "ghost"

	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildRejectsLongContextBandOverLimit(t *testing.T) {
	cfg := Default()
	cfg.UseMock()
	for i := range cfg.Backends {
		if cfg.Backends[i].ID == "gemini-pro" {
			cfg.Backends[i].ContextLimit = 20000
		}
	}

	_, err := Build(cfg)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(cerr.Problems) != 1 || !strings.Contains(cerr.Problems[0], "large_threshold_chars (40000)") {
		t.Fatalf("unexpected problems %v", cerr.Problems)
	}
}

func TestBuildIgnoresLimitOfDroppedLongContextBackend(t *testing.T) {
	clearCredentials(t)
	cfg := Default()
	cfg.Credentials = Credentials{GradientKey: "g", AnthropicAPIKey: "a", OpenAIAPIKey: "o", DeepSeekAPIKey: "d"}
	for i := range cfg.Backends {
		if cfg.Backends[i].ID == "gemini-pro" {
			cfg.Backends[i].ContextLimit = 1
		}
	}

	if _, err := Build(cfg); err != nil {
		t.Fatalf("dropped backend should not be checked: %v", err)
	}
}

func TestSearchBackendIsCandidateOnly(t *testing.T) {
	cfg := Default()
	cfg.UseMock()

	resolved, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, id := range resolved.Routing.targets() {
		if id == "sonar" {
			t.Fatalf("sonar should not be a route target")
		}
	}
	found := false
	for _, b := range resolved.Registry.Tagged(schema.IntentResearch) {
		if b.ID == "sonar" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sonar should be a research candidate")
	}
}

func TestBuildWithMockNeedsNoCredentials(t *testing.T) {
	cfg := Default()
	cfg.Credentials = Credentials{}
	cfg.UseMock()

	resolved, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if resolved.Registry.Len() != len(cfg.Backends) {
		t.Fatalf("expected every backend registered, got %d", resolved.Registry.Len())
	}
	if resolved.Routing.LongContext.Large != "gemini-pro" {
		t.Fatalf("expected long-context route to survive")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
