// Package metrics holds the Prometheus collectors for request routing.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "switchboard"

// Metrics groups the collectors updated by the pipeline and the HTTP server.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Stages          *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	Classifications *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	Tokens          *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	ActiveStreams   prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline duration.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}, []string{"mode"}),
		Stages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Recorded trace steps by name and status.",
		}, []string{"step", "status"}),
		BackendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Backend call latency by backend and result.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 11),
		}, []string{"backend", "result"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifier outcomes by intent.",
		}, []string{"outcome", "intent"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback attempts by failed and alternate backend.",
		}, []string{"from", "to"}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by backend and direction.",
		}, []string{"backend", "direction"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open websocket trace streams.",
		}),
	}
}

// ObserveRequest records one finished pipeline run.
func (m *Metrics) ObserveRequest(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(mode, outcome).Inc()
	m.RequestDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveStage records one appended trace step.
func (m *Metrics) ObserveStage(step, status string) {
	if m == nil {
		return
	}
	m.Stages.WithLabelValues(step, status).Inc()
}

// ObserveBackendCall records one backend call.
func (m *Metrics) ObserveBackendCall(backend string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BackendLatency.WithLabelValues(backend, result).Observe(d.Seconds())
}

// ObserveTokens adds token usage for a backend.
func (m *Metrics) ObserveTokens(backend string, prompt, completion int) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.Tokens.WithLabelValues(backend, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.Tokens.WithLabelValues(backend, "completion").Add(float64(completion))
	}
}

// ObserveClassification records a classifier outcome.
func (m *Metrics) ObserveClassification(outcome, intent string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(outcome, intent).Inc()
}

// ObserveFallback records a switch to an alternate backend.
func (m *Metrics) ObserveFallback(from, to string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(from, to).Inc()
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}

// StreamOpened and StreamClosed track websocket streams.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}
