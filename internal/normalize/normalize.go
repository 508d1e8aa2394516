// Package normalize maps raw per-tool conversations onto the canonical
// record schema. The mapping is total: missing fields collapse to
// documented defaults and no input can make it fail.
package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/fyrsmithlabs/gandalf/internal/relevance"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

const (
	// snippetSourceLen bounds the excerpt captured at normalization.
	// Display truncation to response limits happens in the shaper.
	snippetSourceLen = 300

	// derivedTitleLen bounds titles synthesized from message text.
	derivedTitleLen = 80

	// UntitledTitle is the label for conversations with no usable text.
	UntitledTitle = "Untitled Conversation"
)

// Normalize maps one raw conversation plus its scoring analysis onto
// the canonical record.
func Normalize(conv sources.Conversation, a relevance.Analysis) schema.Record {
	rec := schema.Record{
		ID:             conv.ID,
		SourceTool:     conv.Tool,
		Title:          strings.TrimSpace(conv.Title),
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
		MessageCount:   conv.Count(),
		Snippet:        snippet(conv),
		RelevanceScore: relevance.Round2(a.Score),
		KeywordMatches: a.Matches,
		FileReferences: a.FileReferences,
		Type:           a.Type,
		WorkspaceID:    conv.WorkspaceID,
		DatabasePath:   conv.DatabasePath,
		SessionID:      conv.SessionID,
		SessionData:    conv.SessionData,
	}
	if conv.Tool == schema.ToolWindsurf {
		rec.WindsurfMetadata = conv.Metadata
	}
	if rec.ID == "" {
		rec.ID = derivedID(conv)
	}
	if rec.Title == "" {
		rec.Title = derivedTitle(conv)
	}
	if rec.Type == "" {
		rec.Type = schema.TypeGeneral
	}
	return rec
}

// derivedID builds a stable identifier for conversations whose store
// never assigned one. The hash covers enough fields that distinct
// conversations in one result set land on distinct IDs.
func derivedID(conv sources.Conversation) string {
	var sb strings.Builder
	sb.WriteString(string(conv.Tool))
	sb.WriteByte('\n')
	sb.WriteString(conv.Title)
	fmt.Fprintf(&sb, "\n%d", conv.UpdatedAt.EpochMillis())
	if len(conv.Messages) > 0 {
		sb.WriteByte('\n')
		sb.WriteString(conv.Messages[0].Content)
	}
	return fmt.Sprintf("gen-%016x", xxhash.Sum64String(sb.String()))
}

// derivedTitle synthesizes a label from the first user message, falling
// back to any message and then to the untitled constant.
func derivedTitle(conv sources.Conversation) string {
	text := firstContent(conv, "user")
	if text == "" {
		text = firstContent(conv, "")
	}
	if text == "" {
		return UntitledTitle
	}
	return clipRunes(firstLine(text), derivedTitleLen)
}

// snippet excerpts the first non-empty message body. Conversations
// extracted head-only (Cursor composer heads) have no bodies and keep
// an empty snippet.
func snippet(conv sources.Conversation) string {
	text := firstContent(conv, "")
	if text == "" {
		return ""
	}
	return clipRunes(strings.Join(strings.Fields(text), " "), snippetSourceLen)
}

// firstContent returns the first non-empty message content, filtered by
// role when role is non-empty.
func firstContent(conv sources.Conversation, role string) string {
	for _, msg := range conv.Messages {
		if role != "" && msg.Role != role {
			continue
		}
		if body := strings.TrimSpace(msg.Content); body != "" {
			return body
		}
	}
	return ""
}

// firstLine cuts at the first newline and collapses runs of whitespace.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Join(strings.Fields(s), " ")
}

// clipRunes hard-cuts at max runes without an ellipsis; display
// truncation with ellipsis is the shaper's job.
func clipRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
