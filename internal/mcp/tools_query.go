package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/sanitize"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// ===== RAW QUERY TOOLS =====

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 100
)

// Output formats per tool. Every tool renders json and markdown; cursor
// and windsurf additionally expose their native store shape.
var (
	cursorFormats   = []string{"json", "markdown", "cursor"}
	claudeFormats   = []string{"json", "markdown"}
	windsurfFormats = []string{"json", "markdown", "windsurf"}
)

type queryInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format (default: json)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum conversations to return (default: 10, max: 100)"`
}

type cursorQueryInput struct {
	Format  string `json:"format,omitempty" jsonschema:"Output format: json, markdown, or cursor for the native composer shape (default: json)"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum conversations to return (default: 10, max: 100)"`
	Summary bool   `json:"summary,omitempty" jsonschema:"Return conversation heads only, skipping message bodies (default: false)"`
}

type queryOutput struct {
	Tool          schema.SourceTool `json:"tool"`
	Format        string            `json:"format"`
	Count         int               `json:"count"`
	Conversations any               `json:"conversations"`
	Stats         sources.Stats     `json:"stats"`
	Errors        []string          `json:"errors,omitempty"`
}

func (s *Server) registerQueryTools() {
	cursor := &mcp.Tool{
		Name: "query_cursor_conversations",
		Description: "Query conversations straight from Cursor's workspace and global databases, " +
			"without relevance ranking. Formats: json, markdown, or cursor for the native composer shape.",
	}
	mcp.AddTool(s.mcp, cursor, func(ctx context.Context, req *mcp.CallToolRequest, args cursorQueryInput) (*mcp.CallToolResult, queryOutput, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, cursor.Name)
		ctx = logging.WithRequestID(ctx, newRequestID())
		s.metrics.IncrementActive(ctx, cursor.Name)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, cursor.Name)
			s.metrics.RecordInvocation(ctx, cursor.Name, time.Since(start), toolErr)
		}()

		out, err := s.query(ctx, schema.ToolCursor, cursorFormats, args.Format, args.Limit, !args.Summary)
		if err != nil {
			toolErr = err
			return nil, queryOutput{}, err
		}
		return textResult(querySummary(out)), out, nil
	})
	s.registry.Register(&ToolMetadata{
		Name:        cursor.Name,
		Description: cursor.Description,
		Category:    CategoryQuery,
		Keywords:    []string{"cursor", "raw", "composer"},
	})

	s.registerQueryTool(&mcp.Tool{
		Name: "query_claude_conversations",
		Description: "Query conversations straight from Claude Code's session files, " +
			"without relevance ranking. Formats: json or markdown.",
	}, schema.ToolClaudeCode, claudeFormats, []string{"claude", "raw", "sessions"})

	s.registerQueryTool(&mcp.Tool{
		Name: "query_windsurf_conversations",
		Description: "Query conversations straight from Windsurf's Cascade databases, " +
			"without relevance ranking. Formats: json, markdown, or windsurf for the native session shape.",
	}, schema.ToolWindsurf, windsurfFormats, []string{"windsurf", "raw", "cascade"})
}

func (s *Server) registerQueryTool(tool *mcp.Tool, st schema.SourceTool, formats, keywords []string) {
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args queryInput) (*mcp.CallToolResult, queryOutput, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, tool.Name)
		ctx = logging.WithRequestID(ctx, newRequestID())
		s.metrics.IncrementActive(ctx, tool.Name)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, tool.Name)
			s.metrics.RecordInvocation(ctx, tool.Name, time.Since(start), toolErr)
		}()

		out, err := s.query(ctx, st, formats, args.Format, args.Limit, true)
		if err != nil {
			toolErr = err
			return nil, queryOutput{}, err
		}
		return textResult(querySummary(out)), out, nil
	})
	s.registry.Register(&ToolMetadata{
		Name:        tool.Name,
		Description: tool.Description,
		Category:    CategoryQuery,
		Keywords:    keywords,
	})
}

func querySummary(out queryOutput) string {
	return fmt.Sprintf("Found %d %s conversations.", out.Count, out.Tool)
}

// query runs one unranked extraction pass against a single tool's
// discovered stores and renders the result in the requested format.
func (s *Server) query(ctx context.Context, tool schema.SourceTool, formats []string, format string, limit int, includeMessages bool) (queryOutput, error) {
	if format == "" {
		format = "json"
	}
	format, err := sanitize.ValidateEnum(format, "format", formats)
	if err != nil {
		return queryOutput{}, err
	}
	if limit == 0 {
		limit = defaultQueryLimit
	}
	limit = sanitize.ClampInt(limit, 1, maxQueryLimit)

	provider, ok := s.providers[tool]
	if !ok {
		return queryOutput{}, fmt.Errorf("no provider registered for %s", tool)
	}
	stores, err := s.locator.Discover(ctx, tool)
	if err != nil {
		return queryOutput{}, fmt.Errorf("discover %s stores: %w", tool, err)
	}

	res, err := provider.Extract(ctx, sources.ExtractRequest{
		Stores:          stores,
		Limit:           limit,
		IncludeMessages: includeMessages,
	})
	if err != nil {
		return queryOutput{}, fmt.Errorf("query %s: %w", tool, err)
	}
	s.scrubConversations(res.Conversations)

	out := queryOutput{
		Tool:   tool,
		Format: format,
		Count:  len(res.Conversations),
		Stats:  res.Stats,
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}

	switch format {
	case "markdown":
		docs := make([]string, len(res.Conversations))
		for i, c := range res.Conversations {
			docs[i] = renderQueryMarkdown(c)
		}
		out.Conversations = docs
	case "json":
		docs := make([]rawConversation, len(res.Conversations))
		for i, c := range res.Conversations {
			docs[i] = rawDoc(c)
		}
		out.Conversations = docs
	default:
		docs := make([]map[string]any, len(res.Conversations))
		for i, c := range res.Conversations {
			docs[i] = nativeDoc(c)
		}
		out.Conversations = docs
	}
	return out, nil
}

// scrubConversations redacts secrets from raw conversation text in
// place. Query results are request-scoped, so no copy is needed.
func (s *Server) scrubConversations(convs []sources.Conversation) {
	if !s.scrubber.IsEnabled() {
		return
	}
	for i := range convs {
		convs[i].Title = s.scrubber.Scrub(convs[i].Title).Scrubbed
		for j := range convs[i].Messages {
			convs[i].Messages[j].Content = s.scrubber.Scrub(convs[i].Messages[j].Content).Scrubbed
		}
	}
}

// rawConversation is the JSON projection of one raw store record.
type rawConversation struct {
	ID           string            `json:"id"`
	SourceTool   schema.SourceTool `json:"source_tool"`
	Title        string            `json:"title,omitempty"`
	WorkspaceID  string            `json:"workspace_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	CreatedAt    schema.Timestamp  `json:"created_at"`
	UpdatedAt    schema.Timestamp  `json:"updated_at"`
	MessageCount int               `json:"message_count"`
	Messages     []rawMessage      `json:"messages,omitempty"`
}

type rawMessage struct {
	Role       string           `json:"role,omitempty"`
	Type       string           `json:"type,omitempty"`
	Content    string           `json:"content,omitempty"`
	Timestamp  schema.Timestamp `json:"timestamp"`
	ParentUUID string           `json:"parent_uuid,omitempty"`
}

func rawDoc(c sources.Conversation) rawConversation {
	doc := rawConversation{
		ID:           c.ID,
		SourceTool:   c.Tool,
		Title:        c.Title,
		WorkspaceID:  c.WorkspaceID,
		SessionID:    c.SessionID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: c.Count(),
	}
	for _, m := range c.Messages {
		doc.Messages = append(doc.Messages, rawMessage{
			Role:       m.Role,
			Type:       m.Type,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			ParentUUID: m.ParentUUID,
		})
	}
	return doc
}

// nativeDoc renders the cursor and windsurf native shapes: the json
// projection plus the store path and the undecoded session payloads.
func nativeDoc(c sources.Conversation) map[string]any {
	doc := map[string]any{
		"id":            c.ID,
		"source_tool":   c.Tool,
		"message_count": c.Count(),
		"created_at":    c.CreatedAt,
		"updated_at":    c.UpdatedAt,
	}
	if c.Title != "" {
		doc["title"] = c.Title
	}
	if c.WorkspaceID != "" {
		doc["workspace_id"] = c.WorkspaceID
	}
	if c.SessionID != "" {
		doc["session_id"] = c.SessionID
	}
	if c.DatabasePath != "" {
		doc["database_path"] = c.DatabasePath
	}
	if c.SessionData != nil {
		doc["session_data"] = c.SessionData
	}
	if c.Metadata != nil {
		doc["metadata"] = c.Metadata
	}
	if len(c.Messages) > 0 {
		msgs := make([]rawMessage, len(c.Messages))
		for i, m := range c.Messages {
			msgs[i] = rawMessage{
				Role:       m.Role,
				Type:       m.Type,
				Content:    m.Content,
				Timestamp:  m.Timestamp,
				ParentUUID: m.ParentUUID,
			}
		}
		doc["messages"] = msgs
	}
	return doc
}

func renderQueryMarkdown(c sources.Conversation) string {
	title := c.Title
	if title == "" {
		title = "Untitled Conversation"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "- **Source:** %s\n", c.Tool)
	fmt.Fprintf(&b, "- **ID:** %s\n", c.ID)
	if c.WorkspaceID != "" {
		fmt.Fprintf(&b, "- **Workspace:** %s\n", c.WorkspaceID)
	}
	if c.SessionID != "" {
		fmt.Fprintf(&b, "- **Session:** %s\n", c.SessionID)
	}
	if !c.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Updated:** %s\n", c.UpdatedAt.String())
	}
	fmt.Fprintf(&b, "- **Messages:** %d\n", c.Count())
	for _, m := range c.Messages {
		role := m.Role
		if role == "" {
			role = "message"
		}
		fmt.Fprintf(&b, "\n**%s:** %s\n", role, m.Content)
	}
	return b.String()
}
