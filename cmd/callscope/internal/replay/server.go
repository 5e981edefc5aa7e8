// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replay serves a saved analysis artifact over the analysis
// service protocol, so the client can be run and demonstrated without
// the real service.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/callscope/cmd/callscope/internal/client"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/results"
	"github.com/AleutianAI/callscope/cmd/callscope/internal/util"
	"github.com/AleutianAI/callscope/pkg/logging"
)

// ServiceName identifies the server in traces.
const ServiceName = "callscope-replay"

// Step is one simulated progress report.
type Step struct {
	Progress int
	Message  string
}

// DefaultSteps are the phases a real analysis reports, in order.
var DefaultSteps = []Step{
	{Progress: 10, Message: "Parsing project structure..."},
	{Progress: 30, Message: "Building call graph..."},
	{Progress: 40, Message: "Analyzing code issues..."},
	{Progress: 60, Message: "Generating function descriptions..."},
	{Progress: 90, Message: "Preparing visualization..."},
	{Progress: 100, Message: "Analysis complete!"},
}

// Service error messages.
const (
	msgPathRequired    = "Project path is required"
	msgProjectNotFound = "Project not found"
	msgResultsNotFound = "Results not found"
	msgInvalidModel    = "Invalid model"
)

// Config configures a Server.
type Config struct {
	// Steps are reported one per progress request. The last step
	// completes the job. Defaults to DefaultSteps.
	Steps []Step

	// Model is the initially selected model. Defaults to
	// client.DefaultModel.
	Model client.Model

	// APIKeySet is reported by GET /config.
	APIKeySet bool

	// ShutdownTimeout bounds graceful shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration

	Logger *logging.Logger
}

type replayJob struct {
	path      string
	step      int
	completed bool
}

// Server replays one artifact for every submitted path.
//
// # Description
//
// POST /analyze accepts any non-blank path and creates a job. Each
// GET /progress advances the job by one step; once the last step has
// been reported the job is completed and GET /results returns the
// artifact bytes unchanged.
//
// # Thread Safety
//
// Safe for concurrent use.
type Server struct {
	raw      []byte
	steps    []Step
	logger   *logging.Logger
	shutdown time.Duration
	apiKey   bool

	registry *prometheus.Registry
	requests *prometheus.CounterVec

	mu    sync.Mutex
	jobs  map[string]*replayJob
	model client.Model

	router *gin.Engine
}

// New creates a server for the given artifact.
//
// # Inputs
//
//   - raw: The artifact bytes. Must decode as analysis results.
//   - cfg: Steps, model and logger. Zero values take defaults.
//
// # Outputs
//
//   - *Server: The server, not yet listening.
//   - error: Non-nil if raw is not a valid results payload.
func New(raw []byte, cfg Config) (*Server, error) {
	if _, err := results.Decode(raw); err != nil {
		return nil, fmt.Errorf("replay artifact: %w", err)
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultSteps
	}
	if cfg.Model == "" {
		cfg.Model = client.DefaultModel
	}
	if !cfg.Model.Valid() {
		return nil, fmt.Errorf("replay model %q: %w", cfg.Model, client.ErrUnknownModel)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	s := &Server{
		raw:      append([]byte(nil), raw...),
		steps:    cfg.Steps,
		logger:   cfg.Logger.With("component", "replay"),
		shutdown: util.EnforceDefaultTimeout(cfg.ShutdownTimeout, 5*time.Second),
		apiKey:   cfg.APIKeySet,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callscope_replay_requests_total",
			Help: "Total replay server requests by route and status code",
		}, []string{"route", "code"}),
		jobs:  make(map[string]*replayJob),
		model: cfg.Model,
	}
	s.registry.MustRegister(s.requests)
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(ServiceName))
	r.Use(s.observe())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/analyze", s.handleAnalyze)
	r.GET("/progress/:id", s.handleProgress)
	r.GET("/results/:id", s.handleResults)
	r.GET("/config", s.handleConfig)
	r.POST("/config/model", s.handleSetModel)

	// The OpenTelemetry Prometheus exporter registers with the default
	// registry, so both are gathered.
	metrics := promhttp.HandlerFor(prometheus.Gatherers{s.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
	r.GET("/metrics", gin.WrapH(metrics))
	return r
}

// observe logs each request and counts it by route and status.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		s.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		s.logger.Debug("replay request",
			"method", c.Request.Method,
			"route", route,
			"status", code,
			"request_id", c.GetHeader("X-Request-ID"),
			"duration", time.Since(start),
		)
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleAnalyze(c *gin.Context) {
	var req client.AnalyzeRequest
	// A missing or malformed body is reported the same as a blank path.
	_ = c.ShouldBindJSON(&req)
	path := strings.TrimSpace(req.ProjectPath)
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgPathRequired})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.jobs[id] = &replayJob{path: path}
	s.mu.Unlock()

	s.logger.Info("replay job started", "job_id", id, "path", path)
	c.JSON(http.StatusOK, client.AnalyzeResponse{JobID: id, ProjectID: id, Status: "started"})
}

func (s *Server) handleProgress(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	var step Step
	if ok {
		step = s.steps[j.step]
		if j.step == len(s.steps)-1 {
			j.completed = true
		} else {
			j.step++
		}
	}
	completed := ok && j.completed
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgProjectNotFound})
		return
	}
	status := client.StatusRunning
	if completed {
		status = client.StatusCompleted
	}
	c.JSON(http.StatusOK, client.Progress{Status: status, Progress: step.Progress, Message: step.Message})
}

func (s *Server) handleResults(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	done := ok && j.completed
	s.mu.Unlock()

	switch {
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": msgProjectNotFound})
	case !done:
		c.JSON(http.StatusNotFound, gin.H{"error": msgResultsNotFound})
	default:
		c.Data(http.StatusOK, "application/json", s.raw)
	}
}

func (s *Server) handleConfig(c *gin.Context) {
	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	c.JSON(http.StatusOK, client.ServiceConfig{
		Model:           string(model),
		AvailableModels: client.ModelNames(),
		APIKeySet:       s.apiKey,
	})
}

func (s *Server) handleSetModel(c *gin.Context) {
	var req client.SetModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, client.SetModelResponse{Error: msgInvalidModel})
		return
	}
	m, err := client.ParseModel(req.Model)
	if err != nil {
		c.JSON(http.StatusBadRequest, client.SetModelResponse{Error: msgInvalidModel})
		return
	}

	s.mu.Lock()
	s.model = m
	s.mu.Unlock()

	s.logger.Info("model changed", "model", m)
	c.JSON(http.StatusOK, client.SetModelResponse{Success: true, Model: string(m)})
}

// Model returns the currently selected model.
func (s *Server) Model() client.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// =============================================================================
// Serving
// =============================================================================

// Serve serves on ln until ctx is cancelled, then shuts down
// gracefully.
//
// # Outputs
//
//   - error: A serve failure, or nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("replay server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("replay serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("replay shutdown: %w", err)
		}
		s.logger.Info("replay server stopped")
		return nil
	})
	return g.Wait()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("replay listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
