// Package http provides the HTTP API for openclaw.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/secrets"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SourceName tags tasks submitted over HTTP.
const SourceName = "http"

// Workflow is the orchestrator surface the API needs.
type Workflow interface {
	Submit(ctx context.Context, task workflow.Task) (*workflow.Run, error)
	Status() workflow.Status
	Busy() bool
	Active() *workflow.RunSnapshot
	Last() *workflow.RunSnapshot
}

// MessageReader reads the conversation log.
type MessageReader interface {
	Messages(ch conversation.Channel) ([]conversation.Message, error)
	Len(ch conversation.Channel) int
}

// HealthCheck reports a dependency problem as an error.
type HealthCheck func(ctx context.Context) error

// Server provides HTTP endpoints for openclaw.
type Server struct {
	echo     *echo.Echo
	workflow Workflow
	messages MessageReader
	scrubber secrets.Scrubber
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Meter records request metrics. Nil uses the global meter.
	Meter  metric.Meter
	Checks map[string]HealthCheck
}

// NewServer creates a new HTTP server.
func NewServer(wf Workflow, messages MessageReader, scrubber secrets.Scrubber, logger *zap.Logger, cfg *Config) (*Server, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow cannot be nil")
	}
	if messages == nil {
		return nil, fmt.Errorf("message reader cannot be nil")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8088,
		}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
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
	e.Use(NewHTTPMetrics(cfg.Meter, logger).MetricsMiddleware())

	s := &Server{
		echo:     e,
		workflow: wf,
		messages: messages,
		scrubber: scrubber,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleSubmit)
	v1.GET("/status", s.handleStatus)
	v1.GET("/channels", s.handleChannels)
	v1.GET("/channels/:id/messages", s.handleMessages)
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Workflow: s.workflow.Status(),
	}
	code := http.StatusOK

	if len(s.config.Checks) > 0 {
		names := make([]string, 0, len(s.config.Checks))
		for name := range s.config.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Checks = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.config.Checks[name](c.Request().Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	return c.JSON(code, resp)
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	run, err := s.workflow.Submit(c.Request().Context(), workflow.Task{
		Text:        req.Text,
		SubmitterID: req.SubmitterID,
		Source:      SourceName,
	})
	switch {
	case errors.Is(err, workflow.ErrEmptyTask):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "text field is required"})
	case errors.Is(err, workflow.ErrBusy):
		status := s.workflow.Status()
		s.logger.Info("task rejected, workflow busy", zap.String("status", string(status)))
		return c.JSON(http.StatusConflict, ErrorResponse{Message: "a task is already in progress", Status: status})
	case err != nil:
		s.logger.Error("submit failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "submit failed")
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{
		RunID:     run.ID,
		Status:    run.Status(),
		Recipient: run.Recipient,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status: s.workflow.Status(),
		Busy:   s.workflow.Busy(),
		Active: s.scrubSnapshot(s.workflow.Active()),
		Last:   s.scrubSnapshot(s.workflow.Last()),
	})
}

func (s *Server) handleChannels(c echo.Context) error {
	infos := conversation.Channels()
	resp := ChannelsResponse{Channels: make([]ChannelSummary, len(infos))}
	for i, info := range infos {
		resp.Channels[i] = ChannelSummary{ChannelInfo: info, Messages: s.messages.Len(info.ID)}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMessages(c echo.Context) error {
	ch, err := conversation.ParseChannel(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	msgs, err := s.messages.Messages(ch)
	if err != nil {
		s.logger.Error("read messages", zap.String("channel", string(ch)), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "read messages failed")
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		if limit < len(msgs) {
			msgs = msgs[len(msgs)-limit:]
		}
	}

	for i := range msgs {
		msgs[i].Content = s.scrub(msgs[i].Content)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Channel: ch, Messages: msgs})
}

func (s *Server) scrubSnapshot(snap *workflow.RunSnapshot) *workflow.RunSnapshot {
	if snap == nil {
		return nil
	}
	snap.Task.Text = s.scrub(snap.Task.Text)
	snap.Plan = s.scrub(snap.Plan)
	snap.CurrentSolution = s.scrub(snap.CurrentSolution)
	snap.Final = s.scrub(snap.Final)
	return snap
}

func (s *Server) scrub(text string) string {
	if text == "" {
		return text
	}
	result := s.scrubber.Scrub(text)
	if result.HasFindings() {
		s.logger.Debug("scrubbed api response", zap.Int("findings", result.Total))
	}
	return result.Scrubbed
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
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
