// Package schema defines the canonical conversation record emitted by the
// normalizer and consumed by the aggregator, the response shaper, and the
// tool surface. Every source-specific shape is mapped onto these types before
// it crosses a package boundary.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceTool identifies the IDE a conversation record came from.
type SourceTool string

const (
	ToolCursor     SourceTool = "cursor"
	ToolClaudeCode SourceTool = "claude-code"
	ToolWindsurf   SourceTool = "windsurf"
)

// ErrUnknownTool is returned when a tool name is not one of the supported set.
var ErrUnknownTool = errors.New("unknown source tool")

// AllTools returns the supported tools in their canonical order.
func AllTools() []SourceTool {
	return []SourceTool{ToolCursor, ToolClaudeCode, ToolWindsurf}
}

// ParseSourceTool maps a user-supplied tool name to a SourceTool.
// It accepts common aliases ("claude", "claude_code") case-insensitively.
func ParseSourceTool(s string) (SourceTool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cursor":
		return ToolCursor, nil
	case "claude-code", "claude_code", "claude", "claudecode":
		return ToolClaudeCode, nil
	case "windsurf":
		return ToolWindsurf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
}

// ConversationType is the coarse topic classification assigned by the
// relevance engine. Default is TypeGeneral.
type ConversationType string

const (
	TypeArchitecture   ConversationType = "architecture"
	TypeDebugging      ConversationType = "debugging"
	TypeProblemSolving ConversationType = "problem_solving"
	TypeTechnical      ConversationType = "technical"
	TypeCodeDiscussion ConversationType = "code_discussion"
	TypeGeneral        ConversationType = "general"
)

// ParseConversationType validates a user-supplied type filter value.
func ParseConversationType(s string) (ConversationType, error) {
	switch ConversationType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeArchitecture, TypeDebugging, TypeProblemSolving,
		TypeTechnical, TypeCodeDiscussion, TypeGeneral:
		return ConversationType(strings.ToLower(strings.TrimSpace(s))), nil
	default:
		return "", fmt.Errorf("unknown conversation type %q", s)
	}
}

// Display limits enforced by the response shaper on the way out of a request.
const (
	IDMax      = 50
	TitleMax   = 100
	SnippetMax = 150
)

// Timestamp carries a conversation timestamp in the form the source store
// used: either a millisecond epoch integer or an ISO-8601 string. The form
// seen is preserved through serialization; comparisons use epoch millis.
type Timestamp struct {
	millis int64
	iso    string
}

// FromMillis builds a Timestamp from a millisecond epoch value.
func FromMillis(ms int64) Timestamp {
	return Timestamp{millis: ms}
}

// FromISO builds a Timestamp from an ISO-8601 string, keeping the original
// text for serialization. Unparseable strings yield a zero-milli timestamp
// that still round-trips the raw text.
func FromISO(s string) Timestamp {
	ts := Timestamp{iso: s}
	if t, err := parseISO(s); err == nil {
		ts.millis = t.UnixMilli()
	}
	return ts
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// EpochMillis returns the timestamp as a millisecond epoch value, 0 if unset.
func (t Timestamp) EpochMillis() int64 { return t.millis }

// Time returns the timestamp as a time.Time, zero if unset.
func (t Timestamp) Time() time.Time {
	if t.millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.millis)
}

// IsZero reports whether no timestamp was seen.
func (t Timestamp) IsZero() bool { return t.millis == 0 && t.iso == "" }

// String renders the timestamp for human-facing output: the original
// ISO text when one was seen, RFC 3339 UTC otherwise, "" when unset.
func (t Timestamp) String() string {
	if t.iso != "" {
		return t.iso
	}
	if t.millis == 0 {
		return ""
	}
	return time.UnixMilli(t.millis).UTC().Format(time.RFC3339)
}

// MarshalJSON emits the form the source used: string when ISO text was seen,
// integer millis otherwise. Unset timestamps serialize as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.iso != "" {
		return json.Marshal(t.iso)
	}
	if t.millis == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(t.millis)
}

// UnmarshalJSON accepts integer millis, ISO strings, or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		*t = FromMillis(ms)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be integer millis or string: %w", err)
	}
	*t = FromISO(s)
	return nil
}

// Record is the canonical conversation record. (source_tool, id) is the
// primary key across an aggregated result set.
type Record struct {
	ID             string           `json:"id"`
	SourceTool     SourceTool       `json:"source_tool"`
	Title          string           `json:"title"`
	CreatedAt      Timestamp        `json:"created_at"`
	UpdatedAt      Timestamp        `json:"updated_at"`
	MessageCount   int              `json:"message_count"`
	Snippet        string           `json:"snippet,omitempty"`
	RelevanceScore float64          `json:"relevance_score"`
	KeywordMatches []string         `json:"keyword_matches,omitempty"`
	FileReferences []string         `json:"file_references,omitempty"`
	Type           ConversationType `json:"conversation_type"`

	// Tool-specific passthrough fields, preserved verbatim for downstream
	// consumers. Only the originating tool populates its own fields.
	WorkspaceID      string         `json:"workspace_id,omitempty"`
	DatabasePath     string         `json:"database_path,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	SessionData      map[string]any `json:"session_data,omitempty"`
	WindsurfMetadata map[string]any `json:"windsurf_metadata,omitempty"`
}

// Key returns the aggregation primary key.
func (r Record) Key() string {
	return string(r.SourceTool) + ":" + r.ID
}

// LightweightRecord is the 7-field compact projection used when a full
// response exceeds the size budget.
type LightweightRecord struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	SourceTool     SourceTool `json:"source_tool"`
	MessageCount   int        `json:"message_count"`
	RelevanceScore float64    `json:"relevance_score"`
	CreatedAt      Timestamp  `json:"created_at"`
	Snippet        string     `json:"snippet,omitempty"`
}

// Lightweight projects a record onto its compact form.
func Lightweight(r Record) LightweightRecord {
	return LightweightRecord{
		ID:             r.ID,
		Title:          r.Title,
		SourceTool:     r.SourceTool,
		MessageCount:   r.MessageCount,
		RelevanceScore: r.RelevanceScore,
		CreatedAt:      r.CreatedAt,
		Snippet:        r.Snippet,
	}
}

// Truncate shortens s to max runes, appending "..." when it cut anything.
// max must be greater than 3 for the ellipsis to fit.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
