package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/gandalf/internal/aggregate"
	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/export"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/secrets"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubProvider returns a canned extraction result and records the
// request it was handed.
type stubProvider struct {
	tool   schema.SourceTool
	res    *sources.ExtractResult
	err    error
	called bool
	gotReq sources.ExtractRequest
}

func (s *stubProvider) Tool() schema.SourceTool { return s.tool }

func (s *stubProvider) Extract(_ context.Context, req sources.ExtractRequest) (*sources.ExtractResult, error) {
	s.called = true
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	if s.res == nil {
		return &sources.ExtractResult{}, nil
	}
	return s.res, nil
}

// testConfig builds a config whose cursor, claude, and windsurf stores
// resolve to fixture trees and whose export directory is test-local.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()

	cursorBase := t.TempDir()
	ws := filepath.Join(cursorBase, "workspaceStorage", "ws1")
	require.NoError(t, os.MkdirAll(ws, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "state.vscdb"), []byte("stub"), 0o644))
	cfg.Sources.Cursor.Path = cursorBase

	claudeDir := filepath.Join(t.TempDir(), "projects")
	require.NoError(t, os.MkdirAll(claudeDir, 0o755))
	cfg.Sources.ClaudeCode.Path = claudeDir

	windsurfBase := t.TempDir()
	wws := filepath.Join(windsurfBase, "workspaceStorage", "ws-wind")
	require.NoError(t, os.MkdirAll(wws, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wws, "state.vscdb"), []byte("stub"), 0o644))
	cfg.Sources.Windsurf.Path = windsurfBase

	cfg.Export.Dir = t.TempDir()
	cfg.Cache.Disabled = true
	return cfg
}

// newTestServer wires a server against fixture stores and the given
// stub providers.
func newTestServer(t *testing.T, cfg *config.Config, providers ...sources.Provider) *Server {
	t.Helper()
	log := logging.NewTestLogger().Logger
	locator := discovery.NewLocator(cfg.Sources, log)
	agg := aggregate.New(aggregate.Options{
		Config:    cfg,
		Locator:   locator,
		Providers: providers,
	}, log)
	exporter, err := export.New(cfg, log)
	require.NoError(t, err)
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)

	srv, err := NewServer(&Config{Name: "gandalf", Version: "test", Logger: log}, agg, exporter, locator, providers, scrubber)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiredDependencies(t *testing.T) {
	cfg := testConfig(t)
	log := logging.NewTestLogger().Logger
	locator := discovery.NewLocator(cfg.Sources, log)
	providers := []sources.Provider{&stubProvider{tool: schema.ToolCursor}}
	agg := aggregate.New(aggregate.Options{Config: cfg, Locator: locator, Providers: providers}, log)
	exporter, err := export.New(cfg, log)
	require.NoError(t, err)
	scrubber := &secrets.NoopScrubber{}

	t.Run("missing aggregator", func(t *testing.T) {
		_, err := NewServer(nil, nil, exporter, locator, providers, scrubber)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "aggregator is required")
	})

	t.Run("missing exporter", func(t *testing.T) {
		_, err := NewServer(nil, agg, nil, locator, providers, scrubber)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exporter is required")
	})

	t.Run("missing locator", func(t *testing.T) {
		_, err := NewServer(nil, agg, exporter, nil, providers, scrubber)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locator is required")
	})

	t.Run("missing providers", func(t *testing.T) {
		_, err := NewServer(nil, agg, exporter, locator, nil, scrubber)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one source provider")
	})

	t.Run("missing scrubber", func(t *testing.T) {
		_, err := NewServer(nil, agg, exporter, locator, providers, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scrubber is required")
	})
}

func TestNewServer_RegistersToolSurface(t *testing.T) {
	srv := newTestServer(t, testConfig(t),
		&stubProvider{tool: schema.ToolCursor},
		&stubProvider{tool: schema.ToolClaudeCode},
		&stubProvider{tool: schema.ToolWindsurf},
	)

	registry := srv.Registry()
	require.NotNil(t, registry)
	assert.Equal(t, 7, registry.Count())
	assert.Equal(t, []string{
		"export_individual_conversations",
		"list_conversation_sources",
		"query_claude_conversations",
		"query_cursor_conversations",
		"query_windsurf_conversations",
		"recall_conversations",
		"search_conversations",
	}, registry.ListNames())

	recall, ok := registry.Get("recall_conversations")
	require.True(t, ok)
	assert.Equal(t, CategoryRecall, recall.Category)
	assert.NotEmpty(t, recall.Description)

	assert.Len(t, registry.ListByCategory(CategoryQuery), 3)
	assert.Len(t, registry.ListByCategory(CategoryExport), 1)
	assert.Len(t, registry.ListByCategory(CategoryDiscovery), 1)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gandalf", cfg.Name)
	assert.Equal(t, "dev", cfg.Version)
	assert.NotNil(t, cfg.Logger)
}
