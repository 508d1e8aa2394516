package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/aggregate"
	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/content"
	"github.com/fyrsmithlabs/gandalf/internal/convcache"
	"github.com/fyrsmithlabs/gandalf/internal/dbpool"
	"github.com/fyrsmithlabs/gandalf/internal/debugserver"
	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/export"
	"github.com/fyrsmithlabs/gandalf/internal/keywords"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/mcp"
	"github.com/fyrsmithlabs/gandalf/internal/project"
	"github.com/fyrsmithlabs/gandalf/internal/secrets"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
	"github.com/fyrsmithlabs/gandalf/internal/sources/claudecode"
	"github.com/fyrsmithlabs/gandalf/internal/sources/cursor"
	"github.com/fyrsmithlabs/gandalf/internal/sources/windsurf"
	"github.com/fyrsmithlabs/gandalf/internal/telemetry"
)

// runServe wires the aggregation pipeline and serves MCP on stdio until
// the context is cancelled or the client disconnects.
//
// Initialization order:
//  1. Load configuration and ensure ~/.gandalf exists
//  2. Initialize telemetry, then the logger (OTEL log output needs the provider)
//  3. Open the SQLite pool and build the source providers
//  4. Assemble the pipeline (discovery, keywords, cache, scoring, export)
//  5. Start the optional debug listener
//  6. Serve stdio; on return, shut everything down in reverse order
func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	log, err := initLogger(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync() // Best-effort sync on shutdown
	}()

	log.Info(ctx, "starting gandalf",
		zap.String("version", version),
		zap.String("commit", gitCommit),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	pool := dbpool.New(dbpool.OptionsFromConfig(cfg.Pool), log)
	locator := discovery.NewLocator(cfg.Sources, log)

	// Source toggles are enforced by the locator, which yields no stores
	// for a disabled tool. Providers are always registered so the
	// per-tool query surface answers with an empty result instead of an
	// unknown-tool error.
	providers := buildProviders(cfg, pool, log)

	var cache *convcache.Cache
	if cfg.Cache.Enabled() {
		cache = convcache.New(cfg.Cache, log)
	}

	agg := aggregate.New(aggregate.Options{
		Config:    cfg,
		Locator:   locator,
		Providers: providers,
		Keywords:  keywords.NewBuilder(cfg.Keywords, log),
		Cache:     cache,
		Resolver:  project.NewResolver(log),
	}, log)

	exporter, err := export.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize exporter: %w", err)
	}

	scrubber, err := snippetScrubber(cfg)
	if err != nil {
		return fmt.Errorf("initialize scrubber: %w", err)
	}

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    cfg.Server.Name,
		Version: version,
		Logger:  log,
	}, agg, exporter, locator, providers, scrubber)
	if err != nil {
		return fmt.Errorf("initialize MCP server: %w", err)
	}

	var debug *debugserver.Server
	if cfg.Debug.Enabled {
		debug, err = debugserver.NewServer(cfg.Debug, pool, tel, log, version)
		if err != nil {
			return fmt.Errorf("initialize debug listener: %w", err)
		}
		go func() {
			if err := debug.Start(); err != nil {
				log.Error(ctx, "debug listener failed", zap.Error(err))
			}
		}()
	}

	runErr := srv.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		// Cancellation is the normal shutdown path (SIGINT/SIGTERM).
		runErr = nil
	}

	// The parent context is gone by now; shut down under a fresh one
	// bounded by the configured timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if debug != nil {
		if err := debug.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "debug listener shutdown failed", zap.Error(err))
		}
	}
	if err := pool.Close(); err != nil {
		log.Warn(shutdownCtx, "connection pool close failed", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete")
	return runErr
}

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// initLogger builds the structured logger from the logging section.
// Stdout is never a log destination because it carries the MCP wire
// protocol. tel may be nil for subcommands that run without telemetry.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logCfg.Output.OTEL = cfg.Logging.OTEL
	logCfg.Sampling.Enabled = !cfg.Logging.NoSampling

	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// buildProviders returns the extraction provider for every known tool,
// in the order results are reported.
func buildProviders(cfg *config.Config, pool *dbpool.Pool, log *logging.Logger) []sources.Provider {
	validator := content.NewValidator(content.Config{})
	unit := cfg.Sources.TimestampUnit
	return []sources.Provider{
		cursor.New(pool, validator, unit, log),
		claudecode.New(log),
		windsurf.New(pool, validator, unit, log),
	}
}

// snippetScrubber returns the scrubber applied to tool results. Snippet
// scrubbing is opt-in; exports carry their own scrubber wired inside the
// exporter.
func snippetScrubber(cfg *config.Config) (secrets.Scrubber, error) {
	if !cfg.Scrub.Snippets {
		return &secrets.NoopScrubber{}, nil
	}
	return secrets.New(nil)
}
