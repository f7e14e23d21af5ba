package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/metrics"
	"github.com/zen-systems/switchboard/pkg/observability"
	"github.com/zen-systems/switchboard/pkg/pipeline"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/search"
)

const mockResponse = "[mock] no backend was called"

// app is everything a command needs once configuration has been validated.
type app struct {
	cfg      *config.Config
	resolved *config.Resolved
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracing  *observability.TracerProvider
	engine   *pipeline.Engine
}

func (a *app) Close(ctx context.Context) {
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildApp loads and validates configuration, then wires the engine. A
// missing credential is a *config.ConfigurationError and nothing is built.
func buildApp(ctx context.Context, s settings) (*app, error) {
	logger, err := observability.NewLogger(s.LogLevel, s.LogFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(s.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if s.Mock {
		cfg.UseMock()
	}
	return wire(ctx, s, cfg, logger)
}

func wire(ctx context.Context, s settings, cfg *config.Config, logger *zap.Logger) (*app, error) {
	resolved, err := config.Build(cfg)
	if err != nil {
		return nil, err
	}
	for _, id := range resolved.Dropped {
		logger.Warn("backend disabled, credential missing", zap.String("backend", id))
	}

	adapters, err := createAdapters(ctx, cfg.Credentials, resolved.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}
	dispatcher, err := adapter.NewDispatcher(resolved.Registry, adapters)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	tp, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		Enabled:        s.OTLPEndpoint != "",
		OTLPEndpoint:   s.OTLPEndpoint,
		Insecure:       s.OTLPInsecure,
		SampleRate:     s.SampleRate,
		ServiceName:    "switchboard",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}

	src := createSearch(cfg.Credentials).Pick(cfg.Search.Provider)
	if src != nil {
		logger.Debug("search augmentation enabled", zap.String("provider", src.Name()))
	}

	engine, err := pipeline.New(pipeline.Config{
		Registry:         resolved.Registry,
		Provider:         dispatcher,
		Routing:          resolved.Routing,
		Timeouts:         cfg.Timeouts,
		Pricing:          cfg.Pricing,
		Search:           src,
		MaxSearchResults: cfg.Search.MaxResults,
		EvidenceDir:      s.EvidenceDir,
		Logger:           logger,
		Metrics:          m,
		Tracer:           tp.Tracer(),
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:      cfg,
		resolved: resolved,
		logger:   logger,
		registry: promReg,
		metrics:  m,
		tracing:  tp,
		engine:   engine,
	}, nil
}

// createAdapters builds one adapter per adapter name the registry uses.
func createAdapters(ctx context.Context, creds config.Credentials, reg *registry.Registry) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)
	for _, b := range reg.All() {
		if _, ok := adapters[b.Adapter]; ok {
			continue
		}
		a, err := newAdapter(ctx, b.Adapter, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", b.Adapter, err)
		}
		adapters[b.Adapter] = a
	}
	return adapters, nil
}

func newAdapter(ctx context.Context, name string, creds config.Credentials) (adapter.Adapter, error) {
	switch name {
	case "anthropic":
		return adapter.NewAnthropicAdapter(creds.AnthropicAPIKey)
	case "openai":
		return adapter.NewOpenAIAdapter(creds.OpenAIAPIKey)
	case "perplexity":
		return adapter.NewPerplexityAdapter(creds.PerplexityKey)
	case "google":
		return adapter.NewGoogleAdapter(ctx, creds.GoogleAPIKey)
	case "deepseek":
		return adapter.NewDeepSeekAdapter(creds.DeepSeekAPIKey)
	case "gradient":
		return adapter.NewGradientAdapter(creds.GradientKey, creds.GradientBaseURL)
	case "mock":
		return adapter.NewMockAdapterWithResponses(nil, mockResponse), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", name)
	}
}

func createSearch(creds config.Credentials) *search.Registry {
	sources := search.NewRegistry()
	sources.Register(search.NewPerplexitySource(creds.PerplexityKey))
	sources.Register(search.NewTavilySource(creds.TavilyAPIKey))
	return sources
}
