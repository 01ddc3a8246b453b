// Package server exposes the guidance control plane over HTTP: compile,
// retrieve, gate checks, event recording, and optimizer cycles. It is a
// thin facade; all policy logic lives in the component packages.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidanced/internal/compiler"
	"github.com/fyrsmithlabs/guidanced/internal/gates"
	"github.com/fyrsmithlabs/guidanced/internal/ledger"
	"github.com/fyrsmithlabs/guidanced/internal/optimizer"
	"github.com/fyrsmithlabs/guidanced/internal/policy"
	"github.com/fyrsmithlabs/guidanced/internal/retriever"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server wires the five core components behind HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	logger    *zap.Logger
	config    *Config
	compiler  *compiler.Compiler
	retriever *retriever.Retriever
	gates     *gates.Engine
	ledger    *ledger.Ledger
	optimizer *optimizer.Optimizer

	// mu serializes bundle swaps and optimizer cycles. The optimizer's
	// read-then-write of its promotion tracker is not atomic, so the
	// server acts as its single writer.
	mu     sync.Mutex
	bundle *policy.PolicyBundle
}

// New creates the HTTP server. All components are required.
func New(cfg *Config, logger *zap.Logger, comp *compiler.Compiler, ret *retriever.Retriever, gateEngine *gates.Engine, led *ledger.Ledger, opt *optimizer.Optimizer) (*Server, error) {
	if comp == nil || ret == nil || gateEngine == nil || led == nil || opt == nil {
		return nil, fmt.Errorf("server: all components are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("server: logger is required for request tracking")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9180}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		logger:    logger,
		config:    cfg,
		compiler:  comp,
		retriever: ret,
		gates:     gateEngine,
		ledger:    led,
		optimizer: opt,
	}
	s.registerRoutes()
	return s, nil
}

// Preload compiles guidance documents and installs the bundle before
// the server starts serving, so retrieval works from the first request
// when documents were provided at startup.
func (s *Server) Preload(ctx context.Context, root, local string) error {
	bundle := s.compiler.Compile(root, local)
	if err := s.retriever.LoadBundle(ctx, bundle); err != nil {
		return fmt.Errorf("loading preloaded bundle: %w", err)
	}

	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()

	s.logger.Info("bundle preloaded",
		zap.Int("total_rules", bundle.Manifest.TotalRules),
		zap.String("constitution_hash", bundle.Constitution.Hash),
	)
	return nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/compile", s.handleCompile)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/gate/command", s.handleGateCommand)
	v1.POST("/gate/secrets", s.handleGateSecrets)
	v1.POST("/gate/tool", s.handleGateTool)
	v1.POST("/events", s.handleEvent)
	v1.GET("/metrics-summary", s.handleMetricsSummary)
	v1.POST("/optimize", s.handleOptimize)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// CompileRequest is the request body for POST /api/v1/compile.
type CompileRequest struct {
	Root  string `json:"root"`
	Local string `json:"local,omitempty"`
}

// handleCompile compiles guidance documents and loads the bundle into
// the retriever.
func (s *Server) handleCompile(c echo.Context) error {
	var req CompileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Root == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "root field is required")
	}

	bundle := s.compiler.Compile(req.Root, req.Local)
	if err := s.retriever.LoadBundle(c.Request().Context(), bundle); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()

	return c.JSON(http.StatusOK, bundle)
}

// handleRetrieve returns the task-scoped policy subset.
func (s *Server) handleRetrieve(c echo.Context) error {
	var req retriever.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TaskDescription == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_description field is required")
	}

	result, err := s.retriever.Retrieve(c.Request().Context(), req)
	if err != nil {
		if err == retriever.ErrNotLoaded {
			return echo.NewHTTPError(http.StatusConflict, "no bundle compiled yet")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// GateRequest is the request body for the gate endpoints.
type GateRequest struct {
	Command string `json:"command,omitempty"`
	Content string `json:"content,omitempty"`
	Tool    string `json:"tool,omitempty"`
}

// GateResponse carries the individual results plus their aggregate.
type GateResponse struct {
	Decision gates.Decision `json:"decision"`
	Results  []gates.Result `json:"results"`
}

func (s *Server) handleGateCommand(c echo.Context) error {
	var req GateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	results := s.gates.EvaluateCommand(req.Command)
	return c.JSON(http.StatusOK, GateResponse{Decision: gates.Aggregate(results), Results: results})
}

func (s *Server) handleGateSecrets(c echo.Context) error {
	var req GateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	results := s.gates.EvaluateSecrets(req.Content)
	return c.JSON(http.StatusOK, GateResponse{Decision: gates.Aggregate(results), Results: results})
}

func (s *Server) handleGateTool(c echo.Context) error {
	var req GateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var results []gates.Result
	if r := s.gates.EvaluateToolAllowlist(req.Tool); r != nil {
		results = append(results, *r)
	}
	return c.JSON(http.StatusOK, GateResponse{Decision: gates.Aggregate(results), Results: results})
}

// EventResponse returns the evaluator battery's verdicts for a
// finalized event.
type EventResponse struct {
	TaskID  string              `json:"task_id"`
	Results []ledger.EvalResult `json:"results"`
}

// handleEvent finalizes a run event into the ledger and evaluates it.
func (s *Server) handleEvent(c echo.Context) error {
	var event ledger.RunEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if event.TaskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_id field is required")
	}

	if err := s.ledger.FinalizeEvent(&event); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, EventResponse{
		TaskID:  event.TaskID,
		Results: s.ledger.Evaluate(&event),
	})
}

// MetricsSummaryResponse aggregates ledger-derived quality metrics.
type MetricsSummaryResponse struct {
	Metrics  ledger.Metrics            `json:"metrics"`
	Rankings []ledger.ViolationRanking `json:"rankings"`
}

func (s *Server) handleMetricsSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, MetricsSummaryResponse{
		Metrics:  s.ledger.ComputeMetrics(),
		Rankings: s.ledger.RankViolations(),
	})
}

// handleOptimize runs one optimizer cycle against the current bundle,
// applies any promotions, and reloads the retriever.
func (s *Server) handleOptimize(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bundle == nil {
		return echo.NewHTTPError(http.StatusConflict, "no bundle compiled yet")
	}

	report, err := s.optimizer.RunCycle(s.ledger, s.bundle)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if len(report.Promoted) > 0 {
		next, err := s.optimizer.ApplyPromotions(s.bundle, report.Promoted, report.Changes)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		s.bundle = next
		if err := s.retriever.LoadBundle(c.Request().Context(), next); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusOK, report)
}
