package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/gandalf/internal/sanitize"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

func TestExport_WritesBatch(t *testing.T) {
	now := time.Now()
	cfg := testConfig(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "c1", "cursor conversation", now.Add(-1*time.Hour)),
		},
	}}
	claude := &stubProvider{tool: schema.ToolClaudeCode, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolClaudeCode, "k1", "claude conversation", now.Add(-2*time.Hour)),
		},
	}}
	srv := newTestServer(t, cfg, cursor, claude)

	out, err := srv.exportConversations(context.Background(), exportInput{Format: "json"})
	require.NoError(t, err)

	assert.NotEmpty(t, out.BatchID)
	assert.Equal(t, cfg.Export.Dir, out.OutputDir)
	assert.Equal(t, "json", out.Format)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Files, 2)

	// Newest first.
	assert.Equal(t, "c1", out.Files[0].ID)
	assert.Equal(t, "k1", out.Files[1].ID)

	for _, f := range out.Files {
		_, statErr := os.Stat(filepath.Join(out.OutputDir, f.Name))
		assert.NoError(t, statErr)
	}
	manifests, err := filepath.Glob(filepath.Join(out.OutputDir, "manifest_*.json"))
	require.NoError(t, err)
	assert.Len(t, manifests, 1)

	require.True(t, cursor.called)
	assert.True(t, cursor.gotReq.IncludeMessages)
}

func TestExport_FilterByTitle(t *testing.T) {
	now := time.Now()
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "m1", "content", now.Add(-1*time.Hour)),
			conv(schema.ToolCursor, "m2", "content", now.Add(-2*time.Hour)),
		},
	}}
	cursor.res.Conversations[0].Title = "Alpha Migration"
	cursor.res.Conversations[1].Title = "Beta cleanup"
	srv := newTestServer(t, testConfig(t), cursor)

	out, err := srv.exportConversations(context.Background(), exportInput{
		ConversationFilter: "migration",
		Tools:              []string{"cursor"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "m1", out.Files[0].ID)
}

func TestExport_LimitKeepsNewest(t *testing.T) {
	now := time.Now()
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "old", "a", now.Add(-3*time.Hour)),
			conv(schema.ToolCursor, "newest", "b", now.Add(-1*time.Hour)),
			conv(schema.ToolCursor, "mid", "c", now.Add(-2*time.Hour)),
		},
	}}
	srv := newTestServer(t, testConfig(t), cursor)

	out, err := srv.exportConversations(context.Background(), exportInput{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "newest", out.Files[0].ID)
	assert.Equal(t, "mid", out.Files[1].ID)
}

func TestExport_ToolSelection(t *testing.T) {
	now := time.Now()
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{conv(schema.ToolCursor, "c1", "a", now)},
	}}
	claude := &stubProvider{tool: schema.ToolClaudeCode, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{conv(schema.ToolClaudeCode, "k1", "b", now)},
	}}
	srv := newTestServer(t, testConfig(t), cursor, claude)

	// "claude" is an accepted alias.
	out, err := srv.exportConversations(context.Background(), exportInput{Tools: []string{"claude"}})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "k1", out.Files[0].ID)
	assert.False(t, cursor.called)
}

func TestExport_UnknownToolRejected(t *testing.T) {
	srv := newTestServer(t, testConfig(t), &stubProvider{tool: schema.ToolCursor})

	_, err := srv.exportConversations(context.Background(), exportInput{Tools: []string{"neovim"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownTool)
}

func TestExport_InvalidFormat(t *testing.T) {
	srv := newTestServer(t, testConfig(t), &stubProvider{tool: schema.ToolCursor})

	_, err := srv.exportConversations(context.Background(), exportInput{Format: "pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sanitize.ErrInvalidInput)
}

func TestExport_OutputDirTraversalRejected(t *testing.T) {
	now := time.Now()
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{conv(schema.ToolCursor, "c1", "a", now)},
	}}
	srv := newTestServer(t, testConfig(t), cursor)

	_, err := srv.exportConversations(context.Background(), exportInput{OutputDir: "../escape"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sanitize.ErrPathTraversal)
}

func TestExport_NothingMatched(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg, &stubProvider{tool: schema.ToolCursor})

	out, err := srv.exportConversations(context.Background(), exportInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Count)
	assert.Empty(t, out.BatchID)

	// Nothing touched the export directory.
	entries, err := os.ReadDir(cfg.Export.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_OutputDirOverride(t *testing.T) {
	now := time.Now()
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{conv(schema.ToolCursor, "c1", "a", now)},
	}}
	srv := newTestServer(t, testConfig(t), cursor)

	dest := filepath.Join(t.TempDir(), "exports")
	out, err := srv.exportConversations(context.Background(), exportInput{Format: "md", OutputDir: dest})
	require.NoError(t, err)
	assert.Equal(t, dest, out.OutputDir)
	assert.Equal(t, "md", out.Format)
	require.Len(t, out.Files, 1)
	assert.Equal(t, ".md", filepath.Ext(out.Files[0].Name))
}

func TestListSources(t *testing.T) {
	srv := newTestServer(t, testConfig(t),
		&stubProvider{tool: schema.ToolCursor},
		&stubProvider{tool: schema.ToolClaudeCode},
		&stubProvider{tool: schema.ToolWindsurf},
	)

	out := srv.listSources(context.Background())
	require.Len(t, out.Sources, 3)
	assert.Equal(t, 3, out.Total)

	assert.Equal(t, schema.ToolCursor, out.Sources[0].Tool)
	require.True(t, out.Sources[0].Available)
	require.Len(t, out.Sources[0].Stores, 1)
	assert.Equal(t, "workspace", out.Sources[0].Stores[0].Kind)
	assert.Equal(t, "ws1", out.Sources[0].Stores[0].WorkspaceID)

	assert.Equal(t, schema.ToolClaudeCode, out.Sources[1].Tool)
	require.Len(t, out.Sources[1].Stores, 1)
	assert.Equal(t, "projects", out.Sources[1].Stores[0].Kind)

	assert.Equal(t, schema.ToolWindsurf, out.Sources[2].Tool)
	assert.True(t, out.Sources[2].Available)
}

func TestListSources_DisabledTool(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Windsurf.Disabled = true
	srv := newTestServer(t, cfg, &stubProvider{tool: schema.ToolCursor})

	out := srv.listSources(context.Background())
	require.Len(t, out.Sources, 3)
	assert.Equal(t, 2, out.Total)
	assert.False(t, out.Sources[2].Available)
	assert.Empty(t, out.Sources[2].Stores)
}
