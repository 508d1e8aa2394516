// Package config provides configuration loading for gandalf.
//
// Configuration is loaded from a YAML file and overridden by GANDALF_*
// environment variables. Every section has working defaults; a missing
// config file is not an error.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete gandalf configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Debug     DebugConfig     `koanf:"debug"`
	Pool      PoolConfig      `koanf:"pool"`
	Cache     CacheConfig     `koanf:"cache"`
	Keywords  KeywordsConfig  `koanf:"keywords"`
	Relevance RelevanceConfig `koanf:"relevance"`
	Sources   SourcesConfig   `koanf:"sources"`
	Export    ExportConfig    `koanf:"export"`
	Scrub     ScrubConfig     `koanf:"scrub"`
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Name            string   `koanf:"name"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the user-facing logging knobs. The logging package
// owns the full config; this section carries the values a config file can
// override. Stdout is never a destination because it carries MCP traffic.
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	OTEL       bool   `koanf:"otel"`
	NoSampling bool   `koanf:"no_sampling"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
// Disabled by default: gandalf is a local tool and must not phone home
// unless the operator asks for it.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	ServiceName     string   `koanf:"service_name"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure        bool     `koanf:"insecure"`
	TLSSkipVerify   bool     `koanf:"tls_skip_verify"`
	SampleRate      float64  `koanf:"sample_rate"`
	MetricsInterval Duration `koanf:"metrics_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// DebugConfig holds the optional local debug HTTP listener.
type DebugConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// PoolConfig holds SQLite connection pool tuning.
type PoolConfig struct {
	MaxIdlePerKey    int      `koanf:"max_idle_per_key"`
	BusyTimeout      Duration `koanf:"busy_timeout"`
	OperationTimeout Duration `koanf:"operation_timeout"`
	SchemaTimeout    Duration `koanf:"schema_timeout"`
}

// CacheConfig holds the on-disk conversation cache settings.
// Disabled is the zero value so the cache defaults on.
type CacheConfig struct {
	Disabled   bool     `koanf:"disabled"`
	Dir        string   `koanf:"dir"`
	TTL        Duration `koanf:"ttl"`
	MinRecords int      `koanf:"min_records"`
}

// Enabled reports whether the disk cache should be used.
func (c CacheConfig) Enabled() bool { return !c.Disabled }

// KeywordsConfig holds context keyword generation settings.
type KeywordsConfig struct {
	Max      int      `koanf:"max"`
	CacheTTL Duration `koanf:"cache_ttl"`
}

// RelevanceConfig holds scoring weights. Defaults reproduce the documented
// scoring behavior; change with care, cached results carry scores computed
// under the old weights until they expire.
type RelevanceConfig struct {
	WeightPerChar    float64 `koanf:"weight_per_char"`
	FileRefIncrement float64 `koanf:"file_ref_increment"`
}

// SourcesConfig holds per-tool discovery settings.
type SourcesConfig struct {
	Cursor     SourceToggle `koanf:"cursor"`
	ClaudeCode SourceToggle `koanf:"claude_code"`
	Windsurf   SourceToggle `koanf:"windsurf"`

	// TimestampUnit controls how bare integer timestamps from source
	// stores are interpreted: "auto" (heuristic on magnitude), "ms", "s".
	TimestampUnit string `koanf:"timestamp_unit"`
}

// SourceToggle disables a tool or pins its storage root. Tools are
// opt-out, so the zero value means enabled with automatic discovery.
type SourceToggle struct {
	Disabled bool   `koanf:"disabled"`
	Path     string `koanf:"path"`
}

// Enabled reports whether the tool should be queried.
func (t SourceToggle) Enabled() bool { return !t.Disabled }

// ExportConfig holds conversation export settings.
type ExportConfig struct {
	Dir           string `koanf:"dir"`
	DefaultFormat string `koanf:"default_format"`
}

// ScrubConfig controls secret scrubbing of conversation content.
// Exports are scrubbed unless RawExports is set; in-memory snippets are
// left intact unless Snippets is set.
type ScrubConfig struct {
	RawExports bool `koanf:"raw_exports"`
	Snippets   bool `koanf:"snippets"`
}

// ExportsEnabled reports whether exported content should be scrubbed.
func (s ScrubConfig) ExportsEnabled() bool { return !s.RawExports }

// NewDefaultConfig returns a fully-populated default configuration.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "gandalf"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "gandalf"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(60 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}

	if cfg.Debug.Addr == "" {
		cfg.Debug.Addr = "127.0.0.1:9119"
	}

	if cfg.Pool.MaxIdlePerKey == 0 {
		cfg.Pool.MaxIdlePerKey = 5
	}
	if cfg.Pool.BusyTimeout == 0 {
		cfg.Pool.BusyTimeout = Duration(2 * time.Second)
	}
	if cfg.Pool.OperationTimeout == 0 {
		cfg.Pool.OperationTimeout = Duration(15 * time.Second)
	}
	if cfg.Pool.SchemaTimeout == 0 {
		cfg.Pool.SchemaTimeout = Duration(5 * time.Second)
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "~/.gandalf"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(24 * time.Hour)
	}
	if cfg.Cache.MinRecords == 0 {
		cfg.Cache.MinRecords = 5
	}

	if cfg.Keywords.Max == 0 {
		cfg.Keywords.Max = 20
	}
	if cfg.Keywords.CacheTTL == 0 {
		cfg.Keywords.CacheTTL = Duration(5 * time.Minute)
	}

	if cfg.Relevance.WeightPerChar == 0 {
		cfg.Relevance.WeightPerChar = 0.02
	}
	if cfg.Relevance.FileRefIncrement == 0 {
		cfg.Relevance.FileRefIncrement = 0.15
	}

	if cfg.Sources.TimestampUnit == "" {
		cfg.Sources.TimestampUnit = "auto"
	}

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "~/.gandalf/exports"
	}
	if cfg.Export.DefaultFormat == "" {
		cfg.Export.DefaultFormat = "json"
	}
}

// Validate validates the configuration. Errors name the offending field.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name cannot be empty")
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace|debug|info|warn|error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name required when telemetry enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %v", c.Telemetry.SampleRate)
		}
	}

	if c.Pool.MaxIdlePerKey < 1 {
		return fmt.Errorf("pool.max_idle_per_key must be >= 1, got %d", c.Pool.MaxIdlePerKey)
	}
	if c.Pool.BusyTimeout.Duration() <= 0 {
		return fmt.Errorf("pool.busy_timeout must be positive")
	}
	if c.Pool.OperationTimeout.Duration() <= 0 {
		return fmt.Errorf("pool.operation_timeout must be positive")
	}
	if c.Pool.SchemaTimeout.Duration() <= 0 {
		return fmt.Errorf("pool.schema_timeout must be positive")
	}

	if c.Cache.Enabled() {
		if c.Cache.TTL.Duration() <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache enabled")
		}
		if c.Cache.MinRecords < 0 {
			return fmt.Errorf("cache.min_records must be >= 0, got %d", c.Cache.MinRecords)
		}
	}

	if c.Keywords.Max < 1 {
		return fmt.Errorf("keywords.max must be >= 1, got %d", c.Keywords.Max)
	}

	if c.Relevance.WeightPerChar <= 0 {
		return fmt.Errorf("relevance.weight_per_char must be positive, got %v", c.Relevance.WeightPerChar)
	}
	if c.Relevance.FileRefIncrement <= 0 {
		return fmt.Errorf("relevance.file_ref_increment must be positive, got %v", c.Relevance.FileRefIncrement)
	}

	switch c.Sources.TimestampUnit {
	case "auto", "ms", "s":
	default:
		return fmt.Errorf("sources.timestamp_unit must be one of auto|ms|s, got %q", c.Sources.TimestampUnit)
	}

	switch c.Export.DefaultFormat {
	case "json", "md", "markdown", "txt":
	default:
		return fmt.Errorf("export.default_format must be one of json|md|markdown|txt, got %q", c.Export.DefaultFormat)
	}

	return nil
}
