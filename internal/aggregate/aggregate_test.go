package aggregate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/convcache"
	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var aggNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

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

// cursorFixture builds a User directory holding one workspace store.
func cursorFixture(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	ws := filepath.Join(base, "workspaceStorage", "ws1")
	require.NoError(t, os.MkdirAll(ws, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "state.vscdb"), []byte("stub"), 0o644))
	return base
}

// claudeFixture builds an existing projects directory.
func claudeFixture(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "projects")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

// projectDir builds a project root whose derived keywords are
// predictable: "gateway" from the name, "go" from the tree.
func projectDir(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "gateway")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))
	return root
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Sources.Cursor.Path = cursorFixture(t)
	cfg.Sources.ClaudeCode.Path = claudeFixture(t)
	cfg.Sources.Windsurf.Disabled = true
	return cfg
}

func newAggregator(t *testing.T, cfg *config.Config, cache *convcache.Cache, providers ...sources.Provider) *Aggregator {
	t.Helper()
	agg := New(Options{
		Config:    cfg,
		Locator:   discovery.NewLocator(cfg.Sources, nil),
		Providers: providers,
		Cache:     cache,
	}, nil)
	agg.now = func() time.Time { return aggNow }
	return agg
}

func conv(tool schema.SourceTool, id, content string, updated time.Time) sources.Conversation {
	return sources.Conversation{
		Tool:      tool,
		ID:        id,
		Title:     id,
		UpdatedAt: schema.FromMillis(updated.UnixMilli()),
		Messages:  []sources.Message{{Role: "user", Content: content}},
	}
}

func reportFor(t *testing.T, res *Result, tool schema.SourceTool) SourceReport {
	t.Helper()
	for _, sr := range res.Sources {
		if sr.Tool == tool {
			return sr
		}
	}
	t.Fatalf("no source report for %s", tool)
	return SourceReport{}
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func boolp(v bool) *bool { return &v }

func recordIDs(recs []schema.Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

func TestRecall_Validation(t *testing.T) {
	agg := newAggregator(t, testConfig(t), nil)

	tests := []struct {
		name string
		req  RecallRequest
	}{
		{"zero lookback", RecallRequest{DaysLookback: intp(0)}},
		{"negative lookback", RecallRequest{DaysLookback: intp(-5)}},
		{"unknown conversation type", RecallRequest{ConversationTypes: []string{"gossip"}}},
		{"no known tool", RecallRequest{Tools: []string{"neovim", "emacs"}}},
		{"oversized prompt", RecallRequest{UserPrompt: strings.Repeat("a", maxTextLen+1)}},
		{"oversized tool list", RecallRequest{Tools: make([]string, maxListItems+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agg.Recall(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	agg := newAggregator(t, testConfig(t), nil)

	_, err := agg.Search(context.Background(), SearchRequest{Query: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "query")
}

func TestRecall_DefaultLookbackAndRequestShape(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor}
	claude := &stubProvider{tool: schema.ToolClaudeCode}
	agg := newAggregator(t, cfg, nil, cursor, claude)

	_, err := agg.Recall(context.Background(), RecallRequest{ProjectRoot: root})
	require.NoError(t, err)

	require.True(t, cursor.called)
	assert.True(t, cursor.gotReq.Since.Equal(aggNow.AddDate(0, 0, -7)))
	assert.Equal(t, root, cursor.gotReq.ProjectRoot)
	assert.False(t, cursor.gotReq.IncludeMessages)
	assert.Zero(t, cursor.gotReq.Limit)
	assert.Len(t, cursor.gotReq.Stores, 1)

	_, err = agg.Search(context.Background(), SearchRequest{
		RecallRequest: RecallRequest{ProjectRoot: root},
		Query:         "websocket reconnect",
	})
	require.NoError(t, err)
	assert.True(t, cursor.gotReq.Since.Equal(aggNow.AddDate(0, 0, -30)))
}

func TestRecall_MergesRanksAndLimits(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "c-recent", "alpha beta", aggNow.Add(-1*time.Hour)),
			conv(schema.ToolCursor, "c-stale", "alpha beta", aggNow.AddDate(0, 0, -10)),
		},
		Stats: sources.Stats{Scanned: 2},
	}}
	claude := &stubProvider{tool: schema.ToolClaudeCode, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolClaudeCode, "k-recent", "delta", aggNow.Add(-2*time.Hour)),
		},
		Stats: sources.Stats{Scanned: 1},
	}}
	agg := newAggregator(t, cfg, nil, cursor, claude)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(2),
		MinScore:    floatp(0),
	})
	require.NoError(t, err)

	assert.Equal(t, "recall", res.Operation)
	assert.Equal(t, 3, res.TotalFound)
	require.Len(t, res.Records, 2)
	// Both recent conversations score 1.0 on recency; the cursor one is
	// newer and wins the tie.
	assert.Equal(t, []string{"c-recent", "k-recent"}, recordIDs(res.Records))
	assert.False(t, res.Partial)
	assert.False(t, res.Cached)
	assert.Equal(t, root, res.ProjectRoot)
	assert.Equal(t, []string{"cursor", "claude-code"}, res.AvailableTools)
	assert.Contains(t, res.ContextKeywords, "gateway")

	cr := reportFor(t, res, schema.ToolCursor)
	assert.Equal(t, StatusOK, cr.Status)
	assert.Equal(t, 2, cr.Scanned)
	assert.Equal(t, 2, cr.Kept)

	wr := reportFor(t, res, schema.ToolWindsurf)
	assert.Equal(t, StatusUnavailable, wr.Status)
}

func TestRecall_MinScoreLegacyScale(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	mk := func() *stubProvider {
		return &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
			Conversations: []sources.Conversation{
				conv(schema.ToolCursor, "recent", "alpha", aggNow.Add(-1*time.Hour)),
				conv(schema.ToolCursor, "old", "alpha", aggNow.AddDate(0, 0, -40)),
			},
		}}
	}

	// 5.0 is a legacy-scale threshold: effective 0.5 keeps only the
	// conversation scoring 1.0 on recency.
	agg := newAggregator(t, cfg, nil, mk())
	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot:  root,
		MinScore:     floatp(5.0),
		DaysLookback: intp(60),
		Tools:        []string{"cursor"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, recordIDs(res.Records))

	// 0.1 is already normalized and keeps both.
	agg = newAggregator(t, cfg, nil, mk())
	res, err = agg.Recall(context.Background(), RecallRequest{
		ProjectRoot:  root,
		MinScore:     floatp(0.1),
		DaysLookback: intp(60),
		Tools:        []string{"cursor"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "old"}, recordIDs(res.Records))
}

func TestRecall_TypeFilter(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "bug", "hit a stack trace exception", aggNow.Add(-1*time.Hour)),
			conv(schema.ToolCursor, "chat", "planning lunch with the team", aggNow.Add(-1*time.Hour)),
		},
	}}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot:       root,
		MinScore:          floatp(0),
		ConversationTypes: []string{"debugging"},
		Tools:             []string{"cursor"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "bug", res.Records[0].ID)
	assert.Equal(t, schema.TypeDebugging, res.Records[0].Type)
}

func TestRecall_SourceFailureIsPartial(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, err: fmt.Errorf("%w: state.vscdb locked", sources.ErrUnavailable)}
	claude := &stubProvider{tool: schema.ToolClaudeCode, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolClaudeCode, "k1", "alpha", aggNow.Add(-1*time.Hour)),
		},
	}}
	agg := newAggregator(t, cfg, nil, cursor, claude)

	res, err := agg.Recall(context.Background(), RecallRequest{ProjectRoot: root, MinScore: floatp(0)})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Equal(t, []string{"k1"}, recordIDs(res.Records))

	cr := reportFor(t, res, schema.ToolCursor)
	assert.Equal(t, StatusUnavailable, cr.Status)
	assert.Contains(t, cr.Error, "locked")
	assert.Equal(t, StatusOK, reportFor(t, res, schema.ToolClaudeCode).Status)
}

func TestRecall_TimeoutStatus(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, err: fmt.Errorf("%w: after 15s", sources.ErrTimeout)}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, StatusTimeout, reportFor(t, res, schema.ToolCursor).Status)
}

func TestRecall_ContainedStoreFailureKeepsRecords(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "c1", "alpha", aggNow.Add(-1*time.Hour)),
		},
		Errors: []error{fmt.Errorf("%w: workspace ws2: file missing", sources.ErrUnavailable)},
	}}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)

	// Partial coverage: the readable store's records still serve, the
	// status stays ok, and the failure is noted.
	assert.True(t, res.Partial)
	assert.Equal(t, []string{"c1"}, recordIDs(res.Records))
	cr := reportFor(t, res, schema.ToolCursor)
	assert.Equal(t, StatusOK, cr.Status)
	assert.Contains(t, cr.Error, "ws2")
}

func TestRecall_DecodeErrorsAreNotPartial(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "c1", "alpha", aggNow.Add(-1*time.Hour)),
		},
		Stats:  sources.Stats{DecodeErrors: 2},
		Errors: []error{fmt.Errorf("%w: composer 17: bad json", sources.ErrDecode)},
	}}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, 2, reportFor(t, res, schema.ToolCursor).DecodeErrors)
}

func TestRecall_NoStoresDiscovered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.ClaudeCode.Path = filepath.Join(t.TempDir(), "absent")
	root := projectDir(t)
	claude := &stubProvider{tool: schema.ToolClaudeCode}
	agg := newAggregator(t, cfg, nil, claude)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Tools:       []string{"claude-code"},
	})
	require.NoError(t, err)

	assert.False(t, claude.called)
	kr := reportFor(t, res, schema.ToolClaudeCode)
	assert.Equal(t, StatusUnavailable, kr.Status)
	assert.Contains(t, kr.Error, "no stores")
	// A missing tool is normal, not a failed run.
	assert.False(t, res.Partial)
	assert.NotContains(t, res.AvailableTools, "claude-code")
}

func TestRecall_EarlyTerminationBudget(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	var convs []sources.Conversation
	for i := 0; i < 10; i++ {
		convs = append(convs, conv(schema.ToolCursor, fmt.Sprintf("c%02d", i), "alpha", aggNow.Add(-1*time.Hour)))
	}
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{Conversations: convs}}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(1),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)

	// Collection stops at limit x 3; the response still honors limit.
	assert.Equal(t, 3, reportFor(t, res, schema.ToolCursor).Kept)
	assert.Equal(t, 3, res.TotalFound)
	assert.Len(t, res.Records, 1)
}

func TestRecall_SkipsEmptyConversations(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	empty := sources.Conversation{Tool: schema.ToolCursor, ID: "empty", Title: "empty",
		UpdatedAt: schema.FromMillis(aggNow.Add(-1 * time.Hour).UnixMilli())}
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			empty,
			conv(schema.ToolCursor, "full", "alpha", aggNow.Add(-1*time.Hour)),
		},
	}}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"full"}, recordIDs(res.Records))
}

func TestRecall_UnknownToolAlongsideKnown(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "c1", "alpha", aggNow.Add(-1*time.Hour)),
		},
	}}
	agg := newAggregator(t, cfg, nil, cursor)

	// The blank entry is dropped, the unknown one warned about; the
	// known tool still runs.
	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		MinScore:    floatp(0),
		Tools:       []string{"cursor", "", "neovim"},
	})
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, schema.ToolCursor, res.Sources[0].Tool)
}

func cacheFor(t *testing.T) *convcache.Cache {
	t.Helper()
	return convcache.New(config.CacheConfig{
		Dir:        t.TempDir(),
		TTL:        config.Duration(24 * time.Hour),
		MinRecords: 5,
	}, nil)
}

func sixConversations() *sources.ExtractResult {
	var convs []sources.Conversation
	for i := 0; i < 6; i++ {
		convs = append(convs, conv(schema.ToolCursor, fmt.Sprintf("c%02d", i), "alpha", aggNow.Add(-1*time.Hour)))
	}
	return &sources.ExtractResult{Conversations: convs}
}

func TestRecall_CacheRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cache := cacheFor(t)

	first := newAggregator(t, cfg, cache, &stubProvider{tool: schema.ToolCursor, res: sixConversations()})
	res1, err := first.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(3),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	assert.False(t, res1.Cached)
	assert.Equal(t, 6, res1.TotalFound)

	// The second aggregator's provider would return nothing; records
	// can only come from the cache.
	idle := &stubProvider{tool: schema.ToolCursor}
	second := newAggregator(t, cfg, cache, idle)
	res2, err := second.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(3),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)

	assert.True(t, res2.Cached)
	assert.False(t, idle.called)
	assert.Equal(t, 6, res2.TotalFound)
	assert.Equal(t, recordIDs(res1.Records), recordIDs(res2.Records))
}

func TestRecall_CacheMissWhenLimitExceedsCached(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cache := cacheFor(t)

	first := newAggregator(t, cfg, cache, &stubProvider{tool: schema.ToolCursor, res: sixConversations()})
	_, err := first.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(3),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)

	// Six cached records cannot fill a limit of ten; the fresh path runs.
	fresh := &stubProvider{tool: schema.ToolCursor, res: sixConversations()}
	second := newAggregator(t, cfg, cache, fresh)
	res, err := second.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(10),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.True(t, fresh.called)
}

func TestRecall_PartialResultNotCached(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cache := cacheFor(t)

	cursor := &stubProvider{tool: schema.ToolCursor, res: sixConversations()}
	claude := &stubProvider{tool: schema.ToolClaudeCode, err: fmt.Errorf("%w: projects dir vanished", sources.ErrUnavailable)}
	first := newAggregator(t, cfg, cache, cursor, claude)
	res1, err := first.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(3),
		MinScore:    floatp(0),
	})
	require.NoError(t, err)
	require.True(t, res1.Partial)

	// Nothing was stored, so the next identical request extracts again.
	fresh := &stubProvider{tool: schema.ToolCursor, res: sixConversations()}
	second := newAggregator(t, cfg, cache, fresh)
	res2, err := second.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		Limit:       intp(3),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	assert.False(t, res2.Cached)
	assert.True(t, fresh.called)
}

func TestSearch_IncludeContentPropagates(t *testing.T) {
	cfg := testConfig(t)
	root := projectDir(t)
	cursor := &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
		Conversations: []sources.Conversation{
			conv(schema.ToolCursor, "ws", "websocket reconnect loop", aggNow.Add(-1*time.Hour)),
		},
	}}
	agg := newAggregator(t, cfg, nil, cursor)

	res, err := agg.Search(context.Background(), SearchRequest{
		RecallRequest: RecallRequest{
			ProjectRoot: root,
			MinScore:    floatp(0),
			Tools:       []string{"cursor"},
		},
		Query:          "websocket reconnect",
		IncludeContent: true,
	})
	require.NoError(t, err)

	assert.True(t, cursor.gotReq.IncludeMessages)
	assert.Equal(t, "search", res.Operation)
	assert.Contains(t, res.ContextKeywords, "websocket")
	assert.Contains(t, res.ContextKeywords, "reconnect")
	require.Len(t, res.Records, 1)
	assert.Contains(t, res.Records[0].KeywordMatches, "websocket")
}

func TestRecall_FastModeSkipsFileReferences(t *testing.T) {
	cfg := testConfig(t)
	// A root whose tree implies no tech keywords, so the undated,
	// keyword-free conversation stays under the file-pass threshold.
	root := filepath.Join(t.TempDir(), "acme")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte("a: 1\n"), 0o644))

	undated := func() *stubProvider {
		return &stubProvider{tool: schema.ToolCursor, res: &sources.ExtractResult{
			Conversations: []sources.Conversation{
				{
					Tool:     schema.ToolCursor,
					ID:       "c1",
					Title:    "c1",
					Messages: []sources.Message{{Role: "user", Content: "see config.yaml for details"}},
				},
			},
		}}
	}

	agg := newAggregator(t, cfg, nil, undated())
	res, err := agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Records[0].FileReferences)

	agg = newAggregator(t, cfg, nil, undated())
	res, err = agg.Recall(context.Background(), RecallRequest{
		ProjectRoot: root,
		FastMode:    boolp(false),
		MinScore:    floatp(0),
		Tools:       []string{"cursor"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"config.yaml"}, res.Records[0].FileReferences)
}

func TestSortRecords(t *testing.T) {
	recs := []schema.Record{
		{ID: "b", SourceTool: schema.ToolCursor, RelevanceScore: 0.5, UpdatedAt: schema.FromMillis(2000)},
		{ID: "a", SourceTool: schema.ToolWindsurf, RelevanceScore: 0.5, UpdatedAt: schema.FromMillis(2000)},
		{ID: "c", SourceTool: schema.ToolCursor, RelevanceScore: 0.9, UpdatedAt: schema.FromMillis(1000)},
		{ID: "d", SourceTool: schema.ToolCursor, RelevanceScore: 0.5, UpdatedAt: schema.FromMillis(3000)},
	}
	sortRecords(recs)
	assert.Equal(t, []string{"c", "d", "a", "b"}, recordIDs(recs))
}
