package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/gandalf/internal/relevance"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

func TestNormalize_CanonicalPassthrough(t *testing.T) {
	conv := sources.Conversation{
		Tool:      schema.ToolCursor,
		ID:        "composer-1",
		Title:     "Fix flaky pool test",
		CreatedAt: schema.FromMillis(1714557600000),
		UpdatedAt: schema.FromMillis(1714561200000),
		Messages: []sources.Message{
			{Role: "user", Content: "the pool test flakes under -race"},
			{Role: "assistant", Content: "close the returned conn in cleanup"},
		},
		WorkspaceID:  "a1b2c3d4",
		DatabasePath: "/stores/state.vscdb",
		SessionData:  map[string]any{"composerId": "composer-1"},
	}
	a := relevance.Analysis{
		Score:          0.256,
		Matches:        []string{"pool", "race"},
		FileReferences: []string{"internal/dbpool/pool.go"},
		Type:           schema.TypeDebugging,
	}

	rec := Normalize(conv, a)

	assert.Equal(t, "composer-1", rec.ID)
	assert.Equal(t, schema.ToolCursor, rec.SourceTool)
	assert.Equal(t, "Fix flaky pool test", rec.Title)
	assert.Equal(t, int64(1714557600000), rec.CreatedAt.EpochMillis())
	assert.Equal(t, int64(1714561200000), rec.UpdatedAt.EpochMillis())
	assert.Equal(t, 2, rec.MessageCount)
	assert.Equal(t, "the pool test flakes under -race", rec.Snippet)
	assert.Equal(t, 0.26, rec.RelevanceScore)
	assert.Equal(t, []string{"pool", "race"}, rec.KeywordMatches)
	assert.Equal(t, []string{"internal/dbpool/pool.go"}, rec.FileReferences)
	assert.Equal(t, schema.TypeDebugging, rec.Type)
	assert.Equal(t, "a1b2c3d4", rec.WorkspaceID)
	assert.Equal(t, "/stores/state.vscdb", rec.DatabasePath)
	assert.Equal(t, conv.SessionData, rec.SessionData)
	assert.Nil(t, rec.WindsurfMetadata)

	// Deterministic: same inputs, same record.
	assert.Equal(t, rec, Normalize(conv, a))
}

func TestNormalize_DerivesTitleFromFirstUserMessage(t *testing.T) {
	conv := sources.Conversation{
		Tool: schema.ToolClaudeCode,
		ID:   "sess-1",
		Messages: []sources.Message{
			{Role: "assistant", Content: "hello, how can I help"},
			{Role: "user", Content: "How do I fix the websocket handshake?\nIt times out."},
		},
	}

	rec := Normalize(conv, relevance.Analysis{})

	assert.Equal(t, "How do I fix the websocket handshake?", rec.Title)
}

func TestNormalize_TitleFallsBackToAnyRole(t *testing.T) {
	conv := sources.Conversation{
		Tool:     schema.ToolClaudeCode,
		ID:       "sess-2",
		Messages: []sources.Message{{Role: "assistant", Content: "summary of the refactor"}},
	}

	rec := Normalize(conv, relevance.Analysis{})

	assert.Equal(t, "summary of the refactor", rec.Title)
}

func TestNormalize_TitleClipped(t *testing.T) {
	long := strings.Repeat("word ", 40)
	conv := sources.Conversation{
		Tool:     schema.ToolClaudeCode,
		ID:       "sess-3",
		Messages: []sources.Message{{Role: "user", Content: long}},
	}

	rec := Normalize(conv, relevance.Analysis{})

	assert.Len(t, []rune(rec.Title), derivedTitleLen)
}

func TestNormalize_UntitledFallback(t *testing.T) {
	conv := sources.Conversation{Tool: schema.ToolCursor, ID: "head-only", MessageCount: 14}

	rec := Normalize(conv, relevance.Analysis{})

	assert.Equal(t, UntitledTitle, rec.Title)
	assert.Equal(t, 14, rec.MessageCount)
	assert.Empty(t, rec.Snippet)
	assert.Equal(t, schema.TypeGeneral, rec.Type)
}

func TestNormalize_DerivesStableID(t *testing.T) {
	conv := sources.Conversation{
		Tool:      schema.ToolWindsurf,
		Title:     "cascade session",
		UpdatedAt: schema.FromMillis(1714557600000),
		Messages:  []sources.Message{{Role: "user", Content: "refactor the locator"}},
	}

	first := Normalize(conv, relevance.Analysis{})
	second := Normalize(conv, relevance.Analysis{})

	assert.True(t, strings.HasPrefix(first.ID, "gen-"))
	assert.Len(t, first.ID, len("gen-")+16)
	assert.Equal(t, first.ID, second.ID)

	conv.Title = "different session"
	assert.NotEqual(t, first.ID, Normalize(conv, relevance.Analysis{}).ID)
}

func TestNormalize_SnippetCollapsesWhitespace(t *testing.T) {
	conv := sources.Conversation{
		Tool: schema.ToolClaudeCode,
		ID:   "sess-4",
		Messages: []sources.Message{
			{Role: "user", Content: "  first\tline\n\nsecond   line  "},
		},
	}

	rec := Normalize(conv, relevance.Analysis{})

	assert.Equal(t, "first line second line", rec.Snippet)
}

func TestNormalize_SnippetBounded(t *testing.T) {
	conv := sources.Conversation{
		Tool:     schema.ToolClaudeCode,
		ID:       "sess-5",
		Messages: []sources.Message{{Role: "user", Content: strings.Repeat("x", 2*snippetSourceLen)}},
	}

	rec := Normalize(conv, relevance.Analysis{})

	assert.Len(t, []rune(rec.Snippet), snippetSourceLen)
}

func TestNormalize_WindsurfMetadataOnlyForWindsurf(t *testing.T) {
	meta := map[string]any{"source_key": "chat.sessionStore"}

	ws := sources.Conversation{Tool: schema.ToolWindsurf, ID: "w1", Metadata: meta}
	assert.Equal(t, meta, Normalize(ws, relevance.Analysis{}).WindsurfMetadata)

	cur := sources.Conversation{Tool: schema.ToolCursor, ID: "c1", Metadata: meta}
	assert.Nil(t, Normalize(cur, relevance.Analysis{}).WindsurfMetadata)
}

func TestNormalize_ScoreRounding(t *testing.T) {
	conv := sources.Conversation{Tool: schema.ToolCursor, ID: "c2"}

	assert.Equal(t, 0.87, Normalize(conv, relevance.Analysis{Score: 0.8712}).RelevanceScore)
	assert.Equal(t, 1.0, Normalize(conv, relevance.Analysis{Score: 0.999}).RelevanceScore)
	assert.Zero(t, Normalize(conv, relevance.Analysis{}).RelevanceScore)
}
