// Package export writes conversations to individual files, one per
// conversation, with a manifest describing the batch. Exported content
// is scrubbed for secrets unless configuration opts out; chat logs are
// exactly where pasted credentials end up.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/sanitize"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/secrets"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// Formats accepted by the export surface. "markdown" is an alias kept
// for older clients.
var Formats = []string{"json", "md", "markdown", "txt"}

// extensions are the file suffixes the formats map onto.
var extensions = []string{"json", "md", "txt"}

// MaxBatch bounds one export request.
const MaxBatch = 100

// NormalizeFormat resolves a requested format to its canonical name.
// Extension-style spellings (".json", "MD") are accepted; anything else
// reports against the documented format set.
func NormalizeFormat(raw string) (string, error) {
	format, err := sanitize.ValidateEnum(raw, "format", Formats)
	if err == nil {
		return format, nil
	}
	ext, extErr := sanitize.ValidateFileExtension(raw, extensions)
	if extErr != nil {
		return "", err
	}
	return ext, nil
}

// Batch describes one completed export.
type Batch struct {
	ID        string    `json:"batch_id"`
	Dir       string    `json:"output_dir"`
	Format    string    `json:"format"`
	Files     []File    `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// File is one exported conversation in the batch manifest.
type File struct {
	Name       string            `json:"name"`
	ID         string            `json:"conversation_id"`
	SourceTool schema.SourceTool `json:"source_tool"`
	Title      string            `json:"title"`
	Messages   int               `json:"messages"`
	Bytes      int               `json:"bytes"`
	Redactions int               `json:"redactions,omitempty"`
}

// Options control one export run.
type Options struct {
	// Format is one of Formats; empty means the configured default.
	Format string

	// OutputDir overrides the configured export directory.
	OutputDir string
}

// Exporter renders and writes conversation files.
type Exporter struct {
	cfg      config.ExportConfig
	scrubber secrets.Scrubber
	log      *logging.Logger

	now   func() time.Time
	newID func() string
}

// New creates an exporter. Scrubbing follows the scrub configuration:
// exports are scrubbed unless raw exports are explicitly enabled.
func New(cfg *config.Config, log *logging.Logger) (*Exporter, error) {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	var scrubber secrets.Scrubber = &secrets.NoopScrubber{}
	if cfg.Scrub.ExportsEnabled() {
		s, err := secrets.New(nil)
		if err != nil {
			return nil, fmt.Errorf("build scrubber: %w", err)
		}
		scrubber = s
	}
	return &Exporter{
		cfg:      cfg.Export,
		scrubber: scrubber,
		log:      log.Named("export"),
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Export writes one file per conversation plus a manifest, and returns
// the batch description. The first write failure aborts the batch; a
// half-written export directory is better than a silently incomplete
// manifest.
func (e *Exporter) Export(ctx context.Context, convs []sources.Conversation, opts Options) (*Batch, error) {
	format := opts.Format
	if format == "" {
		format = e.cfg.DefaultFormat
	}
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}

	dir := e.cfg.Dir
	if opts.OutputDir != "" {
		dir, err = sanitize.ValidateProjectPath(opts.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("output_dir: %w", err)
		}
	}
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	if len(convs) > MaxBatch {
		convs = convs[:MaxBatch]
	}

	batch := &Batch{
		ID:        e.newID(),
		Dir:       dir,
		Format:    format,
		CreatedAt: e.now().UTC(),
	}
	stamp := batch.CreatedAt.Format("20060102_150405")

	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, redactions := e.render(conv, format)
		name := e.fileName(dir, stamp, conv, extFor(format))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		batch.Files = append(batch.Files, File{
			Name:       name,
			ID:         conv.ID,
			SourceTool: conv.Tool,
			Title:      conv.Title,
			Messages:   conv.Count(),
			Bytes:      len(content),
			Redactions: redactions,
		})
	}

	if err := e.writeManifest(dir, batch); err != nil {
		return nil, err
	}

	e.log.Info(ctx, "export complete",
		zap.String("batch_id", batch.ID),
		zap.String("dir", dir),
		zap.String("format", format),
		zap.Int("files", len(batch.Files)))
	return batch, nil
}

// fileName builds <stamp>_<sanitized title>_<id8>.<ext>, adding a
// counter suffix on the rare collision.
func (e *Exporter) fileName(dir, stamp string, conv sources.Conversation, ext string) string {
	stem := fmt.Sprintf("%s_%s_%s", stamp, sanitize.SafeFilename(conv.Title), idFragment(conv.ID))
	name := stem + "." + ext
	for i := 1; exists(filepath.Join(dir, name)); i++ {
		name = fmt.Sprintf("%s_%d.%s", stem, i, ext)
	}
	return name
}

func (e *Exporter) writeManifest(dir string, batch *Batch) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	name := fmt.Sprintf("manifest_%s.json", idFragment(batch.ID))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// render produces the file body for one conversation and the number of
// secret redactions applied. Scrubbing runs per message before
// rendering so the output format stays well formed.
func (e *Exporter) render(conv sources.Conversation, format string) (string, int) {
	redactions := 0
	scrub := func(s string) string {
		res := e.scrubber.Scrub(s)
		redactions += res.TotalFindings
		return res.Scrubbed
	}

	// The messages slice is shared with the caller; scrub a copy.
	msgs := make([]sources.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	conv.Messages = msgs

	conv.Title = scrub(conv.Title)
	for i := range conv.Messages {
		conv.Messages[i].Content = scrub(conv.Messages[i].Content)
	}

	switch format {
	case "md", "markdown":
		return renderMarkdown(conv), redactions
	case "txt":
		return renderText(conv), redactions
	default:
		return renderJSON(conv), redactions
	}
}

// conversationDoc is the JSON export shape.
type conversationDoc struct {
	ID           string            `json:"id"`
	SourceTool   schema.SourceTool `json:"source_tool"`
	Title        string            `json:"title"`
	CreatedAt    schema.Timestamp  `json:"created_at"`
	UpdatedAt    schema.Timestamp  `json:"updated_at"`
	MessageCount int               `json:"message_count"`
	Messages     []messageDoc      `json:"messages,omitempty"`
	WorkspaceID  string            `json:"workspace_id,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
}

type messageDoc struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Timestamp schema.Timestamp `json:"timestamp"`
}

func renderJSON(conv sources.Conversation) string {
	doc := conversationDoc{
		ID:           conv.ID,
		SourceTool:   conv.Tool,
		Title:        conv.Title,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: conv.Count(),
		WorkspaceID:  conv.WorkspaceID,
		SessionID:    conv.SessionID,
	}
	for _, m := range conv.Messages {
		doc.Messages = append(doc.Messages, messageDoc{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		// Only unmarshalable values can land here, and the doc holds
		// none; keep the export readable regardless.
		return fmt.Sprintf("{\"id\": %q, \"error\": %q}", conv.ID, err.Error())
	}
	return string(data) + "\n"
}

func renderMarkdown(conv sources.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", orUntitled(conv.Title))
	fmt.Fprintf(&b, "- **Source:** %s\n", conv.Tool)
	fmt.Fprintf(&b, "- **ID:** %s\n", conv.ID)
	fmt.Fprintf(&b, "- **Created:** %s\n", orUnknown(conv.CreatedAt.String()))
	fmt.Fprintf(&b, "- **Updated:** %s\n", orUnknown(conv.UpdatedAt.String()))
	fmt.Fprintf(&b, "- **Messages:** %d\n", conv.Count())
	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "\n---\n\n## %s\n\n%s\n", orRole(m.Role), m.Content)
	}
	return b.String()
}

func renderText(conv sources.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title:    %s\n", orUntitled(conv.Title))
	fmt.Fprintf(&b, "Source:   %s\n", conv.Tool)
	fmt.Fprintf(&b, "ID:       %s\n", conv.ID)
	fmt.Fprintf(&b, "Created:  %s\n", orUnknown(conv.CreatedAt.String()))
	fmt.Fprintf(&b, "Updated:  %s\n", orUnknown(conv.UpdatedAt.String()))
	fmt.Fprintf(&b, "Messages: %d\n", conv.Count())
	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "\n[%s] %s\n", orRole(m.Role), m.Content)
	}
	return b.String()
}

func orUntitled(s string) string {
	if s == "" {
		return "Untitled Conversation"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orRole(role string) string {
	if role == "" {
		return "message"
	}
	return role
}

// extFor maps a validated format to its file extension.
func extFor(format string) string {
	if format == "markdown" {
		return "md"
	}
	return format
}

// idFragment returns a filename-safe eight character slice of an ID.
func idFragment(id string) string {
	frag := sanitize.SafeFilename(id)
	if len(frag) > 8 {
		frag = frag[:8]
	}
	return frag
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
