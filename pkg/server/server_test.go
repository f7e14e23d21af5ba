package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/metrics"
	"github.com/zen-systems/switchboard/pkg/pipeline"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
)

const (
	routerModel   = "router-model"
	coderModel    = "coder-model"
	fallbackModel = "fallback-model"
)

func newTestServer(t *testing.T, mock *adapter.MockAdapter) *Server {
	t.Helper()
	all := []schema.Intent{schema.IntentCode, schema.IntentReasoning, schema.IntentResearch, schema.IntentGeneral}
	reg, err := registry.New([]registry.Backend{
		{ID: "router", Adapter: "mock", Model: routerModel, CostTier: schema.CostLow},
		{ID: "coder", Adapter: "mock", Model: coderModel, Tags: []schema.Intent{schema.IntentCode}, CostTier: schema.CostHigh},
		{ID: "reasoner", Adapter: "mock", Model: "reasoner-model", Tags: []schema.Intent{schema.IntentReasoning}, CostTier: schema.CostMedium},
		{ID: "generalist", Adapter: "mock", Model: "general-model", Tags: []schema.Intent{schema.IntentGeneral}, CostTier: schema.CostLow},
		{ID: "fallback", Adapter: "mock", Model: fallbackModel, Tags: all, CostTier: schema.CostHigh},
	})
	require.NoError(t, err)

	dispatcher, err := adapter.NewDispatcher(reg, map[string]adapter.Adapter{"mock": mock})
	require.NoError(t, err)

	routing := config.Default().Routing
	routing.LongContext.Medium = ""
	routing.LongContext.Large = ""

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	logger := zaptest.NewLogger(t)

	engine, err := pipeline.New(pipeline.Config{
		Registry: reg,
		Provider: dispatcher,
		Routing:  routing,
		Timeouts: config.TimeoutConfig{Request: 5 * time.Second, Classifier: time.Second},
		Logger:   logger,
		Metrics:  m,
	})
	require.NoError(t, err)

	return New(engine, Options{Version: "test", Logger: logger, Metrics: m, Gatherer: promReg})
}

func codeMock() *adapter.MockAdapter {
	return adapter.NewMockAdapter().
		Respond(routerModel, `{"intent":"code","format":"text","needs_citations":false,"confidence":0.9}`).
		Respond(coderModel, "func reverse() {}")
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, codeMock())
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, codeMock())
	rec := doJSON(t, s.Handler(), http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "POST /run_jury")
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestRunJury(t *testing.T) {
	s := newTestServer(t, codeMock())
	rec := doJSON(t, s.Handler(), http.MethodPost, "/run_jury", schema.Request{
		Task:  schema.TaskCode,
		Input: "Write a function to reverse a linked list",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp schema.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "coder", resp.WinnerModel)
	assert.True(t, resp.Verified)
	assert.Equal(t, schema.ModeBest, resp.Mode)
	assert.Len(t, resp.Trace, 4)
	assert.NotEmpty(t, resp.RunID)
}

func TestRunJuryValidation(t *testing.T) {
	mock := codeMock()
	s := newTestServer(t, mock)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/run_jury", map[string]string{"task": "poetry", "input": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body schema.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, schema.ErrValidation, body.Error)
	assert.Equal(t, "task", body.Details["field"])
	assert.Empty(t, mock.Calls(), "no backend may run for an invalid request")

	req := httptest.NewRequest(http.MethodPost, "/run_jury", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	s.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestRunJuryProviderFailure(t *testing.T) {
	mock := codeMock().
		Fail(coderModel, errors.New("upstream 500")).
		Fail(fallbackModel, errors.New("upstream 500"))
	s := newTestServer(t, mock)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/run_jury", schema.Request{Task: schema.TaskCode, Input: "x"})
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())

	var body schema.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, schema.ErrProviderAPI, body.Error)
	assert.Contains(t, body.Details, "trace")
	assert.Contains(t, body.Details, "run_id")
}

func TestBackends(t *testing.T) {
	s := newTestServer(t, codeMock())
	rec := doJSON(t, s.Handler(), http.MethodGet, "/backends", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Backends []backendInfo `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Backends, 5)
	assert.Equal(t, "router", body.Backends[0].ID)
	assert.Equal(t, "chat", body.Backends[0].Kind)
}

func TestInfer(t *testing.T) {
	mock := adapter.NewMockAdapter().Respond(fallbackModel, "pong")
	s := newTestServer(t, mock)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/infer", inferRequest{
		Backend:  "fallback",
		Messages: []adapter.Message{{Role: adapter.RoleUser, Content: "ping"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body inferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pong", body.Final)
	assert.Equal(t, "fallback", body.Model)
	require.Len(t, body.Trace, 1)
	assert.Equal(t, "infer", body.Trace[0].StepName)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, defaultInferMaxTokens, calls[0].MaxOutput)
	assert.InDelta(t, defaultInferTemperature, calls[0].Temperature, 1e-9)
}

func TestInferRejectsUnknownBackend(t *testing.T) {
	s := newTestServer(t, codeMock())
	rec := doJSON(t, s.Handler(), http.MethodPost, "/infer", inferRequest{
		Backend:  "nope",
		Messages: []adapter.Message{{Role: adapter.RoleUser, Content: "ping"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, codeMock())
	doJSON(t, s.Handler(), http.MethodGet, "/health", nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "switchboard_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		schema.ErrValidation:       http.StatusBadRequest,
		schema.ErrConfiguration:    http.StatusInternalServerError,
		schema.ErrProviderTimeout:  http.StatusGatewayTimeout,
		schema.ErrProviderAPI:      http.StatusBadGateway,
		schema.ErrDeadlineExceeded: http.StatusGatewayTimeout,
		schema.ErrCanceled:         StatusCanceled,
		"something_else":           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind)
	}
}

func TestStream(t *testing.T) {
	s := newTestServer(t, codeMock())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/run_jury/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(schema.Request{Task: schema.TaskCode, Input: "reverse a list"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var steps []schema.TraceStep
	var result *schema.Response
	for result == nil {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		switch f.Type {
		case FrameStep:
			require.NotNil(t, f.Step)
			steps = append(steps, *f.Step)
		case FrameResult:
			result = f.Result
		default:
			t.Fatalf("unexpected frame %+v", f)
		}
	}

	// Each stage reports active then complete.
	require.Len(t, steps, 8)
	assert.Equal(t, schema.StepClassify, steps[0].StepName)
	assert.Equal(t, schema.StatusActive, steps[0].Status)
	assert.Equal(t, schema.StatusComplete, steps[1].Status)
	assert.Equal(t, schema.StepVerify, steps[7].StepName)
	assert.Equal(t, "coder", result.WinnerModel)
}

func TestStreamRejectsBadFirstMessage(t *testing.T) {
	s := newTestServer(t, codeMock())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/run_jury/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameError, f.Type)
	require.NotNil(t, f.Error)
	assert.Equal(t, schema.ErrValidation, f.Error.Error)
}
