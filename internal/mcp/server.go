package mcp

import (
	"context"
	"fmt"

	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/secrets"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SourceName tags tasks submitted through MCP.
const SourceName = "mcp"

// Workflow is the orchestrator surface the tools need.
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

// Server is an MCP server around one orchestrator.
type Server struct {
	mcp      *mcp.Server
	workflow Workflow
	messages MessageReader
	scrubber secrets.Scrubber
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "openclaw")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *zap.Logger

	// Meter records tool metrics. Nil uses the global meter.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "openclaw",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, wf Workflow, messages MessageReader, scrubber secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message reader is required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		workflow: wf,
		messages: messages,
		scrubber: scrubber,
		metrics:  NewMetrics(cfg.Meter, cfg.Logger),
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on transport. Run is the stdio shortcut.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

func (s *Server) scrub(text string) string {
	if text == "" {
		return text
	}
	return s.scrubber.Scrub(text).Scrubbed
}
