package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/pipeline"
	"github.com/zen-systems/switchboard/pkg/schema"
)

const (
	defaultInferMaxTokens   = 200
	defaultInferTemperature = 0.2
)

// StatusCanceled is the status written when the client went away.
const StatusCanceled = 499

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case schema.ErrValidation:
		return http.StatusBadRequest
	case schema.ErrConfiguration:
		return http.StatusInternalServerError
	case schema.ErrProviderTimeout, schema.ErrDeadlineExceeded:
		return http.StatusGatewayTimeout
	case schema.ErrProviderAPI:
		return http.StatusBadGateway
	case schema.ErrCanceled:
		return StatusCanceled
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	body := pipeline.Describe(err)
	status := StatusFor(body.Error)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("kind", body.Error), zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, schema.ErrorResponse{
		Error:   schema.ErrValidation,
		Message: message,
		Details: map[string]any{"field": field},
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "switchboard",
		"version": s.opts.Version,
		"endpoints": []string{
			"GET /health",
			"GET /backends",
			"POST /infer",
			"POST /run_jury",
			"GET /run_jury/stream",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

type backendInfo struct {
	ID           string          `json:"id"`
	Adapter      string          `json:"adapter"`
	Model        string          `json:"model"`
	Kind         string          `json:"kind"`
	Tags         []schema.Intent `json:"tags,omitempty"`
	CostTier     schema.CostTier `json:"cost_tier"`
	ContextLimit int             `json:"context_limit,omitempty"`
}

func (s *Server) handleBackends(c *gin.Context) {
	all := s.runner.Registry().All()
	out := make([]backendInfo, 0, len(all))
	for _, b := range all {
		kind := string(b.Kind)
		if kind == "" {
			kind = "chat"
		}
		out = append(out, backendInfo{
			ID:           b.ID,
			Adapter:      b.Adapter,
			Model:        b.Model,
			Kind:         kind,
			Tags:         b.Tags,
			CostTier:     b.CostTier,
			ContextLimit: b.ContextLimit,
		})
	}
	c.JSON(http.StatusOK, gin.H{"backends": out})
}

func (s *Server) handleRunJury(c *gin.Context) {
	var req schema.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid JSON body: "+err.Error())
		return
	}

	resp, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type inferRequest struct {
	Backend     string            `json:"backend"`
	Messages    []adapter.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type inferResponse struct {
	Final     string             `json:"final"`
	Model     string             `json:"model"`
	LatencyMs int64              `json:"latency_ms"`
	Usage     adapter.Usage      `json:"usage"`
	Trace     []schema.TraceStep `json:"trace"`
}

// handleInfer sends messages straight to one backend, bypassing routing.
func (s *Server) handleInfer(c *gin.Context) {
	var req inferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Backend) == "" {
		badRequest(c, "backend", "backend is required")
		return
	}
	backend, ok := s.runner.Registry().Get(req.Backend)
	if !ok {
		badRequest(c, "backend", "unknown backend "+req.Backend)
		return
	}
	if len(req.Messages) == 0 {
		badRequest(c, "messages", "messages must not be empty")
		return
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultInferMaxTokens
	}
	temperature := defaultInferTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	started := time.Now()
	res, err := s.runner.Provider().Call(c.Request.Context(), backend.ID, req.Messages, maxTokens, temperature)
	if err != nil {
		s.writeError(c, err)
		return
	}

	latency := res.Latency.Milliseconds()
	c.JSON(http.StatusOK, inferResponse{
		Final:     res.Text,
		Model:     backend.ID,
		LatencyMs: latency,
		Usage:     res.Usage,
		Trace: []schema.TraceStep{{
			Seq:       1,
			StepName:  "infer",
			BackendID: backend.ID,
			LatencyMs: latency,
			Status:    schema.StatusComplete,
			StartedAt: started,
			Payload:   map[string]any{"model": backend.Model},
		}},
	})
}
