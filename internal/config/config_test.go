package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if cfg.Server.Name != "gandalf" {
		t.Errorf("Server.Name = %q, want gandalf", cfg.Server.Name)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Pool.MaxIdlePerKey != 5 {
		t.Errorf("Pool.MaxIdlePerKey = %d, want 5", cfg.Pool.MaxIdlePerKey)
	}
	if cfg.Pool.BusyTimeout.Duration() != 2*time.Second {
		t.Errorf("Pool.BusyTimeout = %v, want 2s", cfg.Pool.BusyTimeout.Duration())
	}
	if cfg.Pool.OperationTimeout.Duration() != 15*time.Second {
		t.Errorf("Pool.OperationTimeout = %v, want 15s", cfg.Pool.OperationTimeout.Duration())
	}
	if cfg.Pool.SchemaTimeout.Duration() != 5*time.Second {
		t.Errorf("Pool.SchemaTimeout = %v, want 5s", cfg.Pool.SchemaTimeout.Duration())
	}
	if cfg.Keywords.Max != 20 {
		t.Errorf("Keywords.Max = %d, want 20", cfg.Keywords.Max)
	}
	if cfg.Keywords.CacheTTL.Duration() != 5*time.Minute {
		t.Errorf("Keywords.CacheTTL = %v, want 5m", cfg.Keywords.CacheTTL.Duration())
	}
	if cfg.Relevance.WeightPerChar != 0.02 {
		t.Errorf("Relevance.WeightPerChar = %v, want 0.02", cfg.Relevance.WeightPerChar)
	}
	if cfg.Relevance.FileRefIncrement != 0.15 {
		t.Errorf("Relevance.FileRefIncrement = %v, want 0.15", cfg.Relevance.FileRefIncrement)
	}
	if cfg.Sources.TimestampUnit != "auto" {
		t.Errorf("Sources.TimestampUnit = %q, want auto", cfg.Sources.TimestampUnit)
	}
	if cfg.Export.Dir != "~/.gandalf/exports" {
		t.Errorf("Export.Dir = %q, want ~/.gandalf/exports", cfg.Export.Dir)
	}
	if cfg.Export.DefaultFormat != "json" {
		t.Errorf("Export.DefaultFormat = %q, want json", cfg.Export.DefaultFormat)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty server name",
			mutate:  func(c *Config) { c.Server.Name = "" },
			wantErr: "server.name",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "pretty" },
			wantErr: "logging.format",
		},
		{
			name: "telemetry bad protocol",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Protocol = "udp"
			},
			wantErr: "telemetry.protocol",
		},
		{
			name: "telemetry sample rate out of range",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.SampleRate = 1.5
			},
			wantErr: "telemetry.sample_rate",
		},
		{
			name:    "pool zero handles",
			mutate:  func(c *Config) { c.Pool.MaxIdlePerKey = 0 },
			wantErr: "pool.max_idle_per_key",
		},
		{
			name:    "negative cache records",
			mutate:  func(c *Config) { c.Cache.MinRecords = -1 },
			wantErr: "cache.min_records",
		},
		{
			name:    "zero keywords cap",
			mutate:  func(c *Config) { c.Keywords.Max = 0 },
			wantErr: "keywords.max",
		},
		{
			name:    "negative keyword weight",
			mutate:  func(c *Config) { c.Relevance.WeightPerChar = -0.1 },
			wantErr: "relevance.weight_per_char",
		},
		{
			name:    "bad timestamp unit",
			mutate:  func(c *Config) { c.Sources.TimestampUnit = "ns" },
			wantErr: "sources.timestamp_unit",
		},
		{
			name:    "bad export format",
			mutate:  func(c *Config) { c.Export.DefaultFormat = "pdf" },
			wantErr: "export.default_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSourceToggle_Enabled(t *testing.T) {
	var zero SourceToggle
	if !zero.Enabled() {
		t.Error("zero SourceToggle should be enabled")
	}

	off := SourceToggle{Disabled: true}
	if off.Enabled() {
		t.Error("disabled toggle should not be enabled")
	}
}

func TestScrubConfig_Defaults(t *testing.T) {
	var zero ScrubConfig
	if !zero.ExportsEnabled() {
		t.Error("exports should be scrubbed by default")
	}
	if zero.Snippets {
		t.Error("snippets should not be scrubbed by default")
	}
}
