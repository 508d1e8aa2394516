package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/gandalf/internal/aggregate"
	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/export"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/secrets"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// Server exposes the aggregation pipeline as MCP tools.
type Server struct {
	mcp        *mcp.Server
	aggregator *aggregate.Aggregator
	exporter   *export.Exporter
	locator    *discovery.Locator
	providers  map[schema.SourceTool]sources.Provider
	scrubber   secrets.Scrubber
	registry   *ToolRegistry
	metrics    *Metrics
	log        *logging.Logger
}

// Config configures the MCP server identity.
type Config struct {
	// Name is the server implementation name (default: "gandalf").
	Name string

	// Version is the server version reported to clients.
	Version string

	// Logger for structured logging.
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gandalf",
		Version: "dev",
		Logger:  logging.FromContext(context.Background()),
	}
}

// NewServer creates an MCP server over the given pipeline components.
func NewServer(
	cfg *Config,
	aggregator *aggregate.Aggregator,
	exporter *export.Exporter,
	locator *discovery.Locator,
	providers []sources.Provider,
	scrubber secrets.Scrubber,
) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.FromContext(context.Background())
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if locator == nil {
		return nil, fmt.Errorf("locator is required")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one source provider is required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	byTool := make(map[schema.SourceTool]sources.Provider, len(providers))
	for _, p := range providers {
		byTool[p.Tool()] = p
	}

	s := &Server{
		mcp:        mcpServer,
		aggregator: aggregator,
		exporter:   exporter,
		locator:    locator,
		providers:  byTool,
		scrubber:   scrubber,
		registry:   NewToolRegistry(),
		metrics:    NewMetrics(cfg.Logger),
		log:        cfg.Logger.Named("mcp"),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Registry returns the tool metadata registry.
func (s *Server) Registry() *ToolRegistry {
	return s.registry
}

// Run starts the MCP server on the stdio transport and blocks until the
// client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info(ctx, "starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
