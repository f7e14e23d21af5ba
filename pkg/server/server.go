// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/metrics"
	"github.com/zen-systems/switchboard/pkg/registry"
	"github.com/zen-systems/switchboard/pkg/schema"
	"github.com/zen-systems/switchboard/pkg/trace"
)

// Runner is the engine surface the server needs.
type Runner interface {
	Run(ctx context.Context, req schema.Request, observers ...trace.Observer) (*schema.Response, error)
	Registry() *registry.Registry
	Provider() adapter.Provider
}

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Addr         string
	Version      string
	AllowOrigins []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front end.
type Server struct {
	runner   Runner
	opts     Options
	engine   *gin.Engine
	http     *http.Server
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *metrics.Metrics
	started  time.Time
}

// New builds the router. Call ListenAndServe to start accepting connections.
func New(runner Runner, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		runner:  runner,
		opts:    opts,
		engine:  engine,
		logger:  logger,
		metrics: opts.Metrics,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	engine.Use(s.accessLog())
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      engine,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handleInfo)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/backends", s.handleBackends)
	s.engine.POST("/infer", s.handleInfer)

	jury := s.engine.Group("/run_jury")
	{
		jury.POST("", s.handleRunJury)
		jury.GET("/stream", s.handleStream)
	}

	if s.opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status))
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}
}
