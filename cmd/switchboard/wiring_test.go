package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/schema"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{}
	cfg.UseMock()
	return cfg
}

func TestWireFailsFastWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{}

	_, err := wire(context.Background(), settings{}, cfg, zaptest.NewLogger(t))
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	want := []string{"ANTHROPIC_API_KEY", "DEEPSEEK_API_KEY", "MODEL_ACCESS_KEY", "OPENAI_API_KEY"}
	if strings.Join(cerr.Missing, ",") != strings.Join(want, ",") {
		t.Fatalf("missing = %v, want %v", cerr.Missing, want)
	}
}

func TestWireDropsOptionalBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{
		GradientKey:     "g",
		AnthropicAPIKey: "a",
		OpenAIAPIKey:    "o",
		DeepSeekAPIKey:  "d",
	}

	a, err := wire(context.Background(), settings{}, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer a.Close(context.Background())

	for _, id := range []string{"gemini-flash", "gemini-pro", "sonar"} {
		if a.engine.Registry().Has(id) {
			t.Fatalf("%s should be dropped without its credential", id)
		}
	}
	for _, r := range a.engine.Selector().Routes() {
		if r.Rule == router.RuleLongContextLarge || r.Rule == router.RuleLongContextMedium {
			t.Fatalf("long context rule %s should be disabled", r.Rule)
		}
	}
}

func TestWireMockRunsEndToEnd(t *testing.T) {
	a, err := wire(context.Background(), settings{EvidenceDir: t.TempDir()}, mockConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer a.Close(context.Background())

	resp, err := a.engine.Run(context.Background(), schema.Request{Task: schema.TaskSummarize, Input: "hello"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.WinnerModel != "generalist" || !resp.Verified {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.Contains(resp.Final, mockResponse) {
		t.Fatalf("final = %q", resp.Final)
	}
}

func TestReplayPrintsRecordedRun(t *testing.T) {
	dir := t.TempDir()
	a, err := wire(context.Background(), settings{EvidenceDir: dir}, mockConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer a.Close(context.Background())

	resp, err := a.engine.Run(context.Background(), schema.Request{Task: schema.TaskSummarize, Input: "hello"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var out bytes.Buffer
	if err := replay(&out, filepath.Join(dir, resp.RunID), true); err != nil {
		t.Fatalf("replay: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Run " + resp.RunID, "Winner: generalist", "classify", "choose", "execute", mockResponse} {
		if !strings.Contains(text, want) {
			t.Fatalf("replay output missing %q:\n%s", want, text)
		}
	}
}

func TestDisplayConfigNeedsNoCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{}

	display := displayConfig(cfg)
	if cfg.Backends[0].Adapter == "mock" {
		t.Fatalf("displayConfig must not modify its input")
	}

	resolved, err := config.Build(display)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sel, err := router.NewSelector(router.PolicyFromConfig(resolved.Routing), resolved.Registry)
	if err != nil {
		t.Fatalf("selector: %v", err)
	}

	var out bytes.Buffer
	if err := printRoutes(&out, sel.Routes(), resolved.Routing); err != nil {
		t.Fatalf("print: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, router.RuleIntentCode) || !strings.Contains(text, "fallback, generalist") {
		t.Fatalf("unexpected routes:\n%s", text)
	}
	if strings.Contains(text, router.RuleLongContextLarge) {
		t.Fatalf("long context rule shown without credentials:\n%s", text)
	}
}

func TestPrintBackendsShowsCredentialStatus(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{AnthropicAPIKey: "a"}

	var out bytes.Buffer
	if err := printBackends(&out, cfg); err != nil {
		t.Fatalf("print: %v", err)
	}
	for _, line := range strings.Split(out.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "coder "):
			if !strings.HasSuffix(strings.TrimSpace(line), "ready") {
				t.Fatalf("coder should be ready: %q", line)
			}
		case strings.HasPrefix(line, "reasoner "):
			if !strings.HasSuffix(strings.TrimSpace(line), "no key") {
				t.Fatalf("reasoner should have no key: %q", line)
			}
		}
	}
}

func TestTraceFromDetails(t *testing.T) {
	details := map[string]any{
		"trace": []any{
			map[string]any{"seq": float64(1), "step_name": "classify", "status": "complete"},
		},
	}
	steps := traceFromDetails(details)
	if len(steps) != 1 || steps[0].StepName != schema.StepClassify {
		t.Fatalf("unexpected steps %+v", steps)
	}
	if traceFromDetails(nil) != nil {
		t.Fatalf("expected nil for missing trace")
	}
}

func TestRootAskWithMock(t *testing.T) {
	t.Setenv("SWITCHBOARD_HOME", t.TempDir())
	for _, env := range []string{"MODEL_ACCESS_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "DEEPSEEK_API_KEY"} {
		t.Setenv(env, "")
	}

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"ask", "--mock", "--log-level", "error", "--task", "summarize", "hello there"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stdout.String(), mockResponse) {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Answered by generalist") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRootRejectsMissingCredentials(t *testing.T) {
	t.Setenv("SWITCHBOARD_HOME", t.TempDir())
	for _, env := range []string{"MODEL_ACCESS_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "DEEPSEEK_API_KEY"} {
		t.Setenv(env, "")
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ask", "--log-level", "error", "hello"})

	err := cmd.Execute()
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
