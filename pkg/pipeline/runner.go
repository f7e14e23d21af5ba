// Package pipeline runs one request through classification, selection,
// execution, verification and at most one fallback.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/evidence"
	"github.com/zen-systems/switchboard/pkg/gate"
	"github.com/zen-systems/switchboard/pkg/metrics"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/search"
	"github.com/zen-systems/switchboard/pkg/trace"
)

// Config wires an Engine. Registry, Provider and Routing are required.
type Config struct {
	Registry         *registry.Registry
	Provider         adapter.Provider
	Routing          config.RoutingConfig
	Timeouts         config.TimeoutConfig
	Pricing          config.PricingConfig
	Search           search.Source
	MaxSearchResults int
	EvidenceDir      string
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
	Tracer           oteltrace.Tracer
}

// Engine is safe for concurrent use. Every Run builds its own state.
type Engine struct {
	registry    *registry.Registry
	provider    adapter.Provider
	classifier  *router.Classifier
	selector    *router.Selector
	executor    *Executor
	controller  Controller
	timeouts    config.TimeoutConfig
	pricing     config.PricingConfig
	probe       bool
	evidenceDir string

	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  oteltrace.Tracer

	now   func() time.Time
	newID func() string
}

// New validates the wiring and compiles the routing table.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if !cfg.Registry.Has(cfg.Routing.Classifier) {
		return nil, fmt.Errorf("classifier backend %q is not registered", cfg.Routing.Classifier)
	}
	if len(cfg.Routing.Fallback) == 0 {
		return nil, fmt.Errorf("at least one fallback backend is required")
	}
	for _, id := range cfg.Routing.Fallback {
		if !cfg.Registry.Has(id) {
			return nil, fmt.Errorf("fallback backend %q is not registered", id)
		}
	}

	selector, err := router.NewSelector(router.PolicyFromConfig(cfg.Routing), cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("compile routing table: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("switchboard")
	}

	return &Engine{
		registry:    cfg.Registry,
		provider:    cfg.Provider,
		classifier:  router.NewClassifier(cfg.Provider, cfg.Routing.Classifier, cfg.Timeouts.Classifier),
		selector:    selector,
		executor:    NewExecutor(cfg.Provider, cfg.Registry, cfg.Search, cfg.MaxSearchResults, logger),
		controller:  Controller{Alternates: append([]string(nil), cfg.Routing.Fallback...)},
		timeouts:    cfg.Timeouts,
		pricing:     cfg.Pricing,
		probe:       cfg.Routing.ProbeCandidates,
		evidenceDir: cfg.EvidenceDir,
		logger:      logger,
		metrics:     cfg.Metrics,
		tracer:      tracer,
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// Registry returns the backend registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Provider returns the backend call path, for single-backend calls.
func (e *Engine) Provider() adapter.Provider { return e.provider }

// Selector returns the compiled routing table.
func (e *Engine) Selector() *router.Selector { return e.selector }

// Run processes one request. A malformed request returns a
// *schema.ValidationError and runs nothing; every later failure is a
// *RunError carrying the partial trace. observers see each step live.
func (e *Engine) Run(ctx context.Context, req schema.Request, observers ...trace.Observer) (*schema.Response, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := e.newID()
	started := e.now()
	if e.timeouts.Request > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeouts.Request)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "switchboard.run", oteltrace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("task", string(req.Task)),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	observers = append(observers, trace.ObserverFunc(func(s schema.TraceStep) {
		if s.Status != schema.StatusActive {
			e.metrics.ObserveStage(s.StepName, string(s.Status))
		}
	}))
	state := newRequestState(runID, req, started, trace.NewRecorder(observers...), newCostTracker(e.pricing))
	log := e.logger.With(zap.String("run_id", runID))

	resp, err := e.run(ctx, state, log)

	duration := e.now().Sub(started)
	outcome := "ok"
	if err != nil {
		outcome = Describe(err).Error
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn("run failed", zap.String("kind", outcome), zap.Duration("latency", duration), zap.Error(err))
	} else {
		span.SetAttributes(
			attribute.String("winner", resp.WinnerModel),
			attribute.Bool("verified", resp.Verified),
		)
		log.Info("run complete",
			zap.String("winner", resp.WinnerModel),
			zap.Bool("verified", resp.Verified),
			zap.Int("steps", len(resp.Trace)),
			zap.Duration("latency", duration))
		if amount, ok := state.costs.total(); ok {
			log.Debug("run cost estimate", zap.Float64("cost_usd", amount))
		}
	}
	e.metrics.ObserveRequest(string(req.Mode), outcome, duration)
	e.writeEvidence(state, resp, err, duration, log)

	return resp, err
}

func (e *Engine) run(ctx context.Context, state *RequestState, log *zap.Logger) (*schema.Response, error) {
	rec := state.Recorder

	started := rec.Begin(schema.StepClassify, e.classifier.BackendID())
	cctx, cspan := e.tracer.Start(ctx, "switchboard.classify")
	c := e.classifier.Classify(cctx, state.Request)
	cspan.SetAttributes(attribute.String("outcome", string(c.Outcome)), attribute.String("intent", string(c.Descriptor.Intent)))
	cspan.End()

	state.Classification = c
	state.Descriptor = c.Descriptor
	state.costs.record(c.BackendID, c.Usage)
	status := schema.StatusComplete
	if !c.OK() {
		status = schema.StatusError
		log.Warn("classification defaulted", zap.String("stage", schema.StepClassify), zap.String("reason", c.Reason))
	}
	rec.Complete(schema.StepClassify, c.BackendID, started, status, c.Payload())
	e.metrics.ObserveClassification(string(c.Outcome), string(c.Descriptor.Intent))

	if ctx.Err() != nil {
		return nil, abortError(ctx, schema.StepChoose, e.partial(state, nil))
	}

	started = rec.Begin(schema.StepChoose, "")
	sel := e.selector.Select(state.Descriptor, utf8.RuneCountInString(state.Request.Input), state.Request.Mode)
	state.Selection = sel
	rec.Complete(schema.StepChoose, sel.BackendID, started, schema.StatusComplete, sel.Payload())
	log.Info("backend selected",
		zap.String("backend", sel.BackendID),
		zap.String("rule", sel.Rule),
		zap.String("intent", string(sel.Intent)))

	var probes *prober
	if e.probe {
		probes = startProbes(ctx, e.provider, e.registry, state.Descriptor.Intent, sel.BackendID, e.timeouts.Probe)
	}

	if ctx.Err() != nil {
		probes.Stop()
		return nil, abortError(ctx, schema.StepExecute, e.partial(state, nil))
	}

	observe := func(s State) {
		log.Debug("controller state", zap.String("state", string(s)))
	}
	attempts, err := e.controller.Run(ctx, sel.BackendID, e.execFunc(state, log), e.verifyFunc(state), observe)
	state.Attempts = attempts
	if err != nil {
		probes.Stop()
		if ctx.Err() != nil {
			return nil, abortError(ctx, nextStage(attempts), e.partial(state, nil))
		}
		return nil, &RunError{Kind: schema.ErrInternal, Message: "fallback controller failed", Err: err, Partial: e.partial(state, nil)}
	}

	resp := e.partial(state, probes.Wait())
	last := attempts[len(attempts)-1]
	if last.Err != nil {
		return nil, providerRunError(last.Err, resp)
	}

	resp.Final = last.Execution.Text
	resp.WinnerModel = last.BackendID
	resp.Verified = last.Passed
	return resp, nil
}

// partial assembles the response fields that exist at any point of a run.
func (e *Engine) partial(state *RequestState, probes map[string]time.Duration) *schema.Response {
	return &schema.Response{
		RunID:      state.RunID,
		Mode:       state.Request.Mode,
		TaskSpec:   state.Descriptor,
		Scoreboard: trace.BuildScoreboard(e.registry, state.Descriptor.Intent, state.executions(), probes),
		Trace:      state.Recorder.Steps(),
		Sources:    state.sources(),
		Usage:      state.costs.usage(),
	}
}

func (e *Engine) execFunc(state *RequestState, log *zap.Logger) ExecFunc {
	return func(ctx context.Context, backendID string, fallback bool) (*Execution, error) {
		step := schema.StepExecute
		if fallback {
			step = schema.StepFallbackExecute
			e.metrics.ObserveFallback(state.Selection.BackendID, backendID)
			log.Info("falling back", zap.String("from", state.Selection.BackendID), zap.String("backend", backendID))
		}

		started := state.Recorder.Begin(step, backendID)
		sctx, span := e.tracer.Start(ctx, "switchboard."+step, oteltrace.WithAttributes(attribute.String("backend", backendID)))
		exec, err := e.executor.Execute(sctx, state, backendID)

		payload := map[string]any{"fallback": fallback}
		var latency time.Duration
		if exec != nil {
			latency = exec.Latency
			payload["model"] = exec.Model
			if exec.SearchProvider != "" {
				payload["search_provider"] = exec.SearchProvider
				payload["search_latency_ms"] = exec.SearchLatency.Milliseconds()
				payload["sources"] = exec.Sources
				if exec.SearchErr != nil {
					payload["search_error"] = exec.SearchErr.Error()
				}
			}
		}

		status := schema.StatusComplete
		if err != nil {
			status = schema.StatusError
			payload["error"] = err.Error()
			payload["error_kind"] = Describe(err).Error
			payload["transient"] = adapter.IsTransient(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "execution failed")
			log.Warn("execution failed", zap.String("stage", step), zap.String("backend", backendID), zap.Error(err))
		} else {
			cost, priced := state.costs.record(backendID, exec.Usage)
			exec.Cost, exec.Priced = cost, priced
			payload["usage"] = exec.Usage
			payload["output_chars"] = utf8.RuneCountInString(exec.Text)
			if priced {
				payload["cost"] = cost
			}
			e.metrics.ObserveTokens(backendID, exec.Usage.PromptTokens, exec.Usage.CompletionTokens)
		}
		span.End()
		e.metrics.ObserveBackendCall(backendID, err, latency)

		state.Recorder.Complete(step, backendID, started, status, payload)
		return exec, err
	}
}

func (e *Engine) verifyFunc(state *RequestState) VerifyFunc {
	return func(_ context.Context, a *Attempt) (bool, []string) {
		step := schema.StepVerify
		if a.Fallback {
			step = schema.StepFallbackVerify
		}
		started := state.Recorder.Begin(step, a.BackendID)

		var passed bool
		var notes []string
		if a.Err != nil || a.Execution == nil {
			notes = []string{fmt.Sprintf("execution failed: %v", a.Err)}
		} else {
			passed, notes = gate.Verify(a.Execution.Text, state.Descriptor)
		}

		status := schema.StatusComplete
		if !passed {
			status = schema.StatusError
		}
		state.Recorder.Complete(step, a.BackendID, started, status, map[string]any{
			"passed": passed,
			"notes":  notes,
			"format": string(state.Descriptor.ExpectedFormat),
		})
		return passed, notes
	}
}

// nextStage names the stage an aborted controller would have entered.
func nextStage(attempts []Attempt) string {
	switch {
	case len(attempts) == 0:
		return schema.StepExecute
	case len(attempts) == 1 && attempts[0].Notes == nil && !attempts[0].Passed:
		return schema.StepVerify
	case len(attempts) == 1:
		return schema.StepFallbackExecute
	default:
		return schema.StepFallbackVerify
	}
}

func (e *Engine) writeEvidence(state *RequestState, resp *schema.Response, runErr error, duration time.Duration, log *zap.Logger) {
	if e.evidenceDir == "" {
		return
	}
	w, err := evidence.NewWriter(e.evidenceDir, state.RunID)
	if err != nil {
		log.Warn("evidence disabled for run", zap.Error(err))
		return
	}

	for _, a := range state.Attempts {
		name := schema.StepExecute
		if a.Fallback {
			name = schema.StepFallbackExecute
		}
		stage := evidence.StageRecord{
			Name:      name,
			BackendID: a.BackendID,
			Verified:  a.Passed,
			Notes:     a.Notes,
		}
		if a.Err != nil {
			stage.Error = a.Err.Error()
		}
		if x := a.Execution; x != nil {
			stage.Model = x.Model
			stage.DurationMillis = x.Latency.Milliseconds()
			stage.Usage = schema.Usage(x.Usage)
			stage.CostUSD = x.Cost.Amount
			if ref, sha, err := w.WriteBlob("prompt", []byte(adapter.Prompt(x.Prompt))); err == nil {
				stage.PromptRef, stage.PromptHash = ref, sha
			}
			if x.Text != "" {
				if ref, sha, err := w.WriteBlob("output", []byte(x.Text)); err == nil {
					stage.OutputRef, stage.OutputHash = ref, sha
				}
			}
		}
		if err := w.WriteStage(stage); err != nil {
			log.Warn("write stage evidence", zap.String("stage", name), zap.Error(err))
		}
	}

	record := evidence.RunRecord{
		ID:             state.RunID,
		Timestamp:      state.Started.UTC(),
		InputHash:      evidence.HashString(state.Request.Input),
		Request:        state.Request,
		Response:       resp,
		DurationMillis: duration.Milliseconds(),
		ToolVersions:   map[string]string{"go": runtime.Version()},
	}
	if amount, ok := state.costs.total(); ok {
		record.CostUSD = amount
	}
	if runErr != nil {
		desc := Describe(runErr)
		record.Error = &desc
	}
	if err := w.WriteRun(record); err != nil {
		log.Warn("write run evidence", zap.Error(err))
	}
}
