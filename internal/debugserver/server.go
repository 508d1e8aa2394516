// Package debugserver provides an optional localhost HTTP listener for
// operating gandalf: liveness, readiness, Prometheus metrics, and pool
// occupancy. The MCP protocol owns stdout and stderr carries logs, so
// this listener is the only way to look inside a running server.
//
// Disabled by default and restricted to loopback addresses; it exposes
// operational state, never conversation content.
package debugserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/dbpool"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/telemetry"
)

// Server is the debug HTTP listener.
type Server struct {
	echo *echo.Echo
	cfg  config.DebugConfig
	pool *dbpool.Pool
	tel  *telemetry.Telemetry
	log  *logging.Logger

	version string
	started time.Time
}

// NewServer creates the debug listener. The pool and telemetry handles
// may be nil; their status endpoints then report absent components.
func NewServer(cfg config.DebugConfig, pool *dbpool.Pool, tel *telemetry.Telemetry, log *logging.Logger, version string) (*Server, error) {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	if err := validateAddr(cfg.Addr); err != nil {
		return nil, err
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

			log.Debug(c.Request().Context(), "debug http request",
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
		echo:    e,
		cfg:     cfg,
		pool:    pool,
		tel:     tel,
		log:     log.Named("debugserver"),
		version: version,
		started: time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

// validateAddr rejects non-loopback bind addresses. The listener has no
// authentication, so it must never face a network.
func validateAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid debug listen address %q: %w", addr, err)
	}
	switch host {
	case "localhost", "":
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("debug listener must bind a loopback address, got %q", host)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/readyz", s.handleReadyz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/debug/pool", s.handlePool)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyzResponse is the body of GET /readyz.
type ReadyzResponse struct {
	Status    string                  `json:"status"`
	UptimeSec int64                   `json:"uptime_sec"`
	Pool      *dbpool.Stats           `json:"pool,omitempty"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

// handleReadyz reports component state. The server is ready as soon as
// it listens; degraded telemetry is reported but does not flip
// readiness, because gandalf serves fine without an exporter.
func (s *Server) handleReadyz(c echo.Context) error {
	resp := ReadyzResponse{
		Status:    "ready",
		UptimeSec: int64(time.Since(s.started).Seconds()),
	}
	if s.pool != nil {
		stats := s.pool.Stats()
		resp.Pool = &stats
	}
	if s.tel != nil {
		health := s.tel.Health()
		resp.Telemetry = &health
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePool(c echo.Context) error {
	if s.pool == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no connection pool configured")
	}
	return c.JSON(http.StatusOK, s.pool.Stats())
}

// Start begins serving and blocks until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "starting debug listener", zap.String("addr", s.cfg.Addr))
	if err := s.echo.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("debug listener failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down debug listener")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
