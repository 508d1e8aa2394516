package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/gandalf/internal/aggregate"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/response"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() error {
	s.registerRecallTools()
	s.registerQueryTools()
	s.registerExportTools()
	s.registerSourceTools()
	return nil
}

// newRequestID mints a fresh correlation ID for one tool call.
// ContextFields folds it into every log line downstream of the handler.
func newRequestID() string {
	return "req_" + uuid.New().String()
}

// textResult wraps a summary line as the human-readable half of a tool
// response; the typed output struct carries the structured half.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// scrubRecords redacts secrets from the free-text fields of a ranked
// result in place. Titles and snippets are the only places store content
// survives into a recall or search response.
func (s *Server) scrubRecords(recs []schema.Record) {
	if !s.scrubber.IsEnabled() {
		return
	}
	for i := range recs {
		recs[i].Title = s.scrubber.Scrub(recs[i].Title).Scrubbed
		recs[i].Snippet = s.scrubber.Scrub(recs[i].Snippet).Scrubbed
	}
}

// ===== RECALL / SEARCH TOOLS =====

type recallInput struct {
	FastMode          *bool    `json:"fast_mode,omitempty" jsonschema:"Skip per-file reference scanning for speed (default: true)"`
	DaysLookback      *int     `json:"days_lookback,omitempty" jsonschema:"How many days back to look (default: 7, max: 60)"`
	Limit             *int     `json:"limit,omitempty" jsonschema:"Maximum conversations to return (default: 20, max: 100)"`
	MinScore          *float64 `json:"min_score,omitempty" jsonschema:"Minimum relevance score; values above 1 are treated as legacy-scale thresholds (default: 2.0)"`
	ConversationTypes []string `json:"conversation_types,omitempty" jsonschema:"Filter by conversation type (architecture, debugging, problem_solving, technical, code_discussion, general)"`
	Tools             []string `json:"tools,omitempty" jsonschema:"Restrict to specific source tools (cursor, claude-code, windsurf; default: all)"`
	UserPrompt        string   `json:"user_prompt,omitempty" jsonschema:"Current prompt; its terms are blended into the context keywords"`
	SearchQuery       string   `json:"search_query,omitempty" jsonschema:"Extra terms to blend into keyword matching"`
	ProjectRoot       string   `json:"project_root,omitempty" jsonschema:"Project root override (default: git root of the working directory)"`
}

type searchInput struct {
	Query             string   `json:"query" jsonschema:"required,Search terms to match against titles, messages, and keywords"`
	IncludeContent    bool     `json:"include_content,omitempty" jsonschema:"Extract full message bodies where the store has them (default: false)"`
	FastMode          *bool    `json:"fast_mode,omitempty" jsonschema:"Skip per-file reference scanning for speed (default: true)"`
	DaysLookback      *int     `json:"days_lookback,omitempty" jsonschema:"How many days back to look (default: 30, max: 60)"`
	Limit             *int     `json:"limit,omitempty" jsonschema:"Maximum conversations to return (default: 20, max: 100)"`
	MinScore          *float64 `json:"min_score,omitempty" jsonschema:"Minimum relevance score; values above 1 are treated as legacy-scale thresholds (default: 2.0)"`
	ConversationTypes []string `json:"conversation_types,omitempty" jsonschema:"Filter by conversation type (architecture, debugging, problem_solving, technical, code_discussion, general)"`
	Tools             []string `json:"tools,omitempty" jsonschema:"Restrict to specific source tools (cursor, claude-code, windsurf; default: all)"`
	UserPrompt        string   `json:"user_prompt,omitempty" jsonschema:"Current prompt; its terms are blended into the context keywords"`
	SearchQuery       string   `json:"search_query,omitempty" jsonschema:"Extra terms to blend into keyword matching"`
	ProjectRoot       string   `json:"project_root,omitempty" jsonschema:"Project root override (default: git root of the working directory)"`
}

func (s *Server) registerRecallTools() {
	recall := &mcp.Tool{
		Name: "recall_conversations",
		Description: "Recall relevant AI conversations about the current project across Cursor, " +
			"Claude Code, and Windsurf. Returns a ranked, merged view with context keywords and per-tool results.",
	}
	mcp.AddTool(s.mcp, recall, func(ctx context.Context, req *mcp.CallToolRequest, args recallInput) (*mcp.CallToolResult, response.Envelope, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, recall.Name)
		ctx = logging.WithRequestID(ctx, newRequestID())
		s.metrics.IncrementActive(ctx, recall.Name)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, recall.Name)
			s.metrics.RecordInvocation(ctx, recall.Name, time.Since(start), toolErr)
		}()

		env, err := s.recall(ctx, args)
		if err != nil {
			toolErr = err
			return nil, response.Envelope{}, err
		}
		return textResult(env.Summary), env, nil
	})
	s.registry.Register(&ToolMetadata{
		Name:        recall.Name,
		Description: recall.Description,
		Category:    CategoryRecall,
		Keywords:    []string{"history", "context", "recent", "memory"},
	})

	search := &mcp.Tool{
		Name: "search_conversations",
		Description: "Search past AI conversations for specific topics across Cursor, Claude Code, " +
			"and Windsurf. Like recall_conversations but driven by an explicit query with a longer default lookback.",
	}
	mcp.AddTool(s.mcp, search, func(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, response.Envelope, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, search.Name)
		ctx = logging.WithRequestID(ctx, newRequestID())
		s.metrics.IncrementActive(ctx, search.Name)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, search.Name)
			s.metrics.RecordInvocation(ctx, search.Name, time.Since(start), toolErr)
		}()

		env, err := s.search(ctx, args)
		if err != nil {
			toolErr = err
			return nil, response.Envelope{}, err
		}
		return textResult(env.Summary), env, nil
	})
	s.registry.Register(&ToolMetadata{
		Name:        search.Name,
		Description: search.Description,
		Category:    CategoryRecall,
		Keywords:    []string{"find", "lookup", "topic", "query"},
	})
}

func (s *Server) recall(ctx context.Context, args recallInput) (response.Envelope, error) {
	res, err := s.aggregator.Recall(ctx, aggregate.RecallRequest{
		FastMode:          args.FastMode,
		DaysLookback:      args.DaysLookback,
		Limit:             args.Limit,
		MinScore:          args.MinScore,
		ConversationTypes: args.ConversationTypes,
		Tools:             args.Tools,
		UserPrompt:        args.UserPrompt,
		SearchQuery:       args.SearchQuery,
		ProjectRoot:       args.ProjectRoot,
	})
	if err != nil {
		if errors.Is(err, aggregate.ErrValidation) {
			return response.Envelope{}, err
		}
		return response.Envelope{}, fmt.Errorf("recall failed: %w", err)
	}
	return s.shape(res)
}

func (s *Server) search(ctx context.Context, args searchInput) (response.Envelope, error) {
	res, err := s.aggregator.Search(ctx, aggregate.SearchRequest{
		RecallRequest: aggregate.RecallRequest{
			FastMode:          args.FastMode,
			DaysLookback:      args.DaysLookback,
			Limit:             args.Limit,
			MinScore:          args.MinScore,
			ConversationTypes: args.ConversationTypes,
			Tools:             args.Tools,
			UserPrompt:        args.UserPrompt,
			SearchQuery:       args.SearchQuery,
			ProjectRoot:       args.ProjectRoot,
		},
		Query:          args.Query,
		IncludeContent: args.IncludeContent,
	})
	if err != nil {
		if errors.Is(err, aggregate.ErrValidation) {
			return response.Envelope{}, err
		}
		return response.Envelope{}, fmt.Errorf("search failed: %w", err)
	}
	return s.shape(res)
}

// shape scrubs a ranked result and folds it into the size-bounded
// response envelope.
func (s *Server) shape(res *aggregate.Result) (response.Envelope, error) {
	s.scrubRecords(res.Records)
	env, _, err := response.Shape(res)
	if err != nil {
		return response.Envelope{}, fmt.Errorf("shape response: %w", err)
	}
	return *env, nil
}
