package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Output.Stderr)
	assert.False(t, cfg.Output.OTEL)
	assert.True(t, cfg.Sampling.Enabled)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Equal(t, "gandalf", cfg.Fields["service"])

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Format = "yaml" },
			wantErr: "format must be",
		},
		{
			name: "no outputs",
			mutate: func(c *Config) {
				c.Output.Stderr = false
				c.Output.OTEL = false
			},
			wantErr: "at least one output",
		},
		{
			name:    "zero sampling tick",
			mutate:  func(c *Config) { c.Sampling.Tick = 0 },
			wantErr: "sampling tick",
		},
		{
			name:    "negative caller skip",
			mutate:  func(c *Config) { c.Caller.Skip = -1 },
			wantErr: "caller skip",
		},
		{
			name:    "invalid redaction pattern",
			mutate:  func(c *Config) { c.Redaction.Patterns = []string{"[unclosed"} },
			wantErr: "invalid redaction pattern",
		},
		{
			name:    "empty field key",
			mutate:  func(c *Config) { c.Fields = map[string]string{"": "x"} },
			wantErr: "field key cannot be empty",
		},
		{
			name:    "empty field value",
			mutate:  func(c *Config) { c.Fields = map[string]string{"env": ""} },
			wantErr: "empty value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultLevelSamplingConfig(t *testing.T) {
	levels := DefaultLevelSamplingConfig()

	// Errors never appear: they bypass sampling entirely
	_, hasError := levels[zapcore.ErrorLevel]
	assert.False(t, hasError)

	assert.Equal(t, 1, levels[TraceLevel].Initial)
	assert.Equal(t, 100, levels[zapcore.InfoLevel].Initial)
	assert.Equal(t, 10, levels[zapcore.InfoLevel].Thereafter)
}
