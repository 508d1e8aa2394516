package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/export"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/sanitize"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// ===== EXPORT / DISCOVERY TOOLS =====

const (
	defaultExportLimit = 20
	maxFilterLen       = 256
)

type exportInput struct {
	Format             string   `json:"format,omitempty" jsonschema:"File format: json, md, markdown, or txt (default: configured, normally json)"`
	Limit              int      `json:"limit,omitempty" jsonschema:"Maximum conversations to export (default: 20, max: 100)"`
	OutputDir          string   `json:"output_dir,omitempty" jsonschema:"Directory to write files into (default: configured export directory)"`
	ConversationFilter string   `json:"conversation_filter,omitempty" jsonschema:"Keep only conversations whose title or ID contains this text (case-insensitive)"`
	Tools              []string `json:"tools,omitempty" jsonschema:"Restrict to specific source tools (cursor, claude-code, windsurf; default: all)"`
}

type exportOutput struct {
	BatchID   string        `json:"batch_id,omitempty"`
	OutputDir string        `json:"output_dir,omitempty"`
	Format    string        `json:"format,omitempty"`
	Count     int           `json:"count"`
	Files     []export.File `json:"files,omitempty"`
}

func (s *Server) registerExportTools() {
	tool := &mcp.Tool{
		Name: "export_individual_conversations",
		Description: "Export conversations to individual files with a batch manifest. " +
			"Formats: json, md, markdown, txt. Files land in the configured export directory unless output_dir overrides it.",
	}
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args exportInput) (*mcp.CallToolResult, exportOutput, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, tool.Name)
		ctx = logging.WithRequestID(ctx, newRequestID())
		s.metrics.IncrementActive(ctx, tool.Name)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, tool.Name)
			s.metrics.RecordInvocation(ctx, tool.Name, time.Since(start), toolErr)
		}()

		out, err := s.exportConversations(ctx, args)
		if err != nil {
			toolErr = err
			return nil, exportOutput{}, err
		}
		if out.Count == 0 {
			return textResult("No conversations matched; nothing exported."), out, nil
		}
		return textResult(fmt.Sprintf("Exported %d conversations to %s.", out.Count, out.OutputDir)), out, nil
	})
	s.registry.Register(&ToolMetadata{
		Name:        tool.Name,
		Description: tool.Description,
		Category:    CategoryExport,
		Keywords:    []string{"export", "files", "backup", "manifest"},
	})
}

func (s *Server) exportConversations(ctx context.Context, args exportInput) (exportOutput, error) {
	format := args.Format
	if format != "" {
		canonical, err := export.NormalizeFormat(format)
		if err != nil {
			return exportOutput{}, err
		}
		format = canonical
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultExportLimit
	}
	limit = sanitize.ClampInt(limit, 1, export.MaxBatch)

	filter, err := sanitize.ValidateString(args.ConversationFilter, "conversation_filter", maxFilterLen, false)
	if err != nil {
		return exportOutput{}, err
	}

	tools, err := parseTools(args.Tools)
	if err != nil {
		return exportOutput{}, err
	}

	convs := s.collect(ctx, tools, filter, limit)
	if len(convs) == 0 {
		return exportOutput{}, nil
	}

	batch, err := s.exporter.Export(ctx, convs, export.Options{
		Format:    format,
		OutputDir: args.OutputDir,
	})
	if err != nil {
		if errors.Is(err, sanitize.ErrInvalidInput) || errors.Is(err, sanitize.ErrPathTraversal) {
			return exportOutput{}, err
		}
		return exportOutput{}, fmt.Errorf("export failed: %w", err)
	}
	return exportOutput{
		BatchID:   batch.ID,
		OutputDir: batch.Dir,
		Format:    batch.Format,
		Count:     len(batch.Files),
		Files:     batch.Files,
	}, nil
}

// parseTools resolves the requested tool names strictly: exporting is a
// side-effecting operation, so an unknown name is an error rather than
// a silent skip. Empty means all tools.
func parseTools(names []string) ([]schema.SourceTool, error) {
	if len(names) == 0 {
		return schema.AllTools(), nil
	}
	seen := make(map[schema.SourceTool]bool, len(names))
	var tools []schema.SourceTool
	for _, name := range names {
		tool, err := schema.ParseSourceTool(name)
		if err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
		if seen[tool] {
			continue
		}
		seen[tool] = true
		tools = append(tools, tool)
	}
	return tools, nil
}

// collect gathers raw conversations for an export run, newest first.
// Per-tool failures are logged and skipped; an export serves whatever
// sources are reachable.
func (s *Server) collect(ctx context.Context, tools []schema.SourceTool, filter string, limit int) []sources.Conversation {
	var convs []sources.Conversation
	for _, tool := range tools {
		provider, ok := s.providers[tool]
		if !ok {
			continue
		}
		stores, err := s.locator.Discover(ctx, tool)
		if err != nil {
			s.log.Warn(ctx, "store discovery failed", zap.String("tool", string(tool)), zap.Error(err))
			continue
		}
		if len(stores) == 0 {
			continue
		}
		res, err := provider.Extract(ctx, sources.ExtractRequest{
			Stores:          stores,
			Limit:           limit,
			IncludeMessages: true,
		})
		if err != nil {
			s.log.Warn(ctx, "extraction failed", zap.String("tool", string(tool)), zap.Error(err))
			continue
		}
		convs = append(convs, res.Conversations...)
	}
	convs = filterConversations(convs, filter)
	sort.SliceStable(convs, func(i, j int) bool {
		ti, tj := convs[i].UpdatedAt.EpochMillis(), convs[j].UpdatedAt.EpochMillis()
		if ti != tj {
			return ti > tj
		}
		return convs[i].ID < convs[j].ID
	})
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs
}

// filterConversations keeps conversations whose title or ID contains
// the filter text, case-insensitively.
func filterConversations(convs []sources.Conversation, filter string) []sources.Conversation {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return convs
	}
	needle := strings.ToLower(filter)
	kept := convs[:0]
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.Title), needle) || strings.Contains(strings.ToLower(c.ID), needle) {
			kept = append(kept, c)
		}
	}
	return kept
}

type listSourcesInput struct{}

type storeDoc struct {
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

type toolSourcesDoc struct {
	Tool      schema.SourceTool `json:"tool"`
	Available bool              `json:"available"`
	Stores    []storeDoc        `json:"stores,omitempty"`
}

type listSourcesOutput struct {
	Sources []toolSourcesDoc `json:"sources"`
	Total   int              `json:"total_stores"`
}

func (s *Server) registerSourceTools() {
	tool := &mcp.Tool{
		Name:        "list_conversation_sources",
		Description: "List the conversation stores discovered on this machine for each supported tool.",
	}
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args listSourcesInput) (*mcp.CallToolResult, listSourcesOutput, error) {
		start := time.Now()
		ctx = logging.WithTool(ctx, tool.Name)
		ctx = logging.WithRequestID(ctx, newRequestID())
		s.metrics.IncrementActive(ctx, tool.Name)
		defer func() {
			s.metrics.DecrementActive(ctx, tool.Name)
			s.metrics.RecordInvocation(ctx, tool.Name, time.Since(start), nil)
		}()

		out := s.listSources(ctx)
		return textResult(fmt.Sprintf("Discovered %d conversation stores.", out.Total)), out, nil
	})
	s.registry.Register(&ToolMetadata{
		Name:        tool.Name,
		Description: tool.Description,
		Category:    CategoryDiscovery,
		Keywords:    []string{"sources", "stores", "discovery", "availability"},
	})
}

// listSources reports every discovered store in canonical tool order.
// Tools with nothing on disk still appear, marked unavailable.
func (s *Server) listSources(ctx context.Context) listSourcesOutput {
	discovered := s.locator.DiscoverAll(ctx)
	var out listSourcesOutput
	for _, tool := range schema.AllTools() {
		doc := toolSourcesDoc{Tool: tool}
		for _, store := range discovered[tool] {
			doc.Stores = append(doc.Stores, storeDoc{
				Kind:        string(store.Kind),
				Path:        store.Path,
				WorkspaceID: store.WorkspaceID,
			})
		}
		doc.Available = len(doc.Stores) > 0
		out.Total += len(doc.Stores)
		out.Sources = append(out.Sources, doc)
	}
	return out
}
