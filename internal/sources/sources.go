// Package sources defines the contract between the aggregator and the
// per-tool extractors, plus the raw conversation model they emit.
//
// Raw conversations keep whatever shape the source store used; the
// normalizer maps them onto the canonical schema. Extractors never write
// to a store and never fail an entire request: store-level problems are
// reported through error kinds and per-source stats.
package sources

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// Error kinds shared by all extractors. Wrapped with context via %w;
// the aggregator branches on errors.Is and maps each kind onto a
// per-tool result status.
var (
	// ErrUnavailable marks a store that is missing, unreadable, or corrupt.
	ErrUnavailable = errors.New("source unavailable")

	// ErrTimeout marks a per-source deadline that elapsed mid-extraction.
	ErrTimeout = errors.New("source timeout")

	// ErrDecode marks a record that could not be decoded. The record is
	// dropped; siblings continue.
	ErrDecode = errors.New("decode error")
)

// Provider is one per-tool extractor.
type Provider interface {
	// Tool identifies which source this provider reads.
	Tool() schema.SourceTool

	// Extract reads the request's stores and returns raw conversations.
	// Store-level failures are recorded in the result, not returned;
	// the error return is reserved for total failure (no store could
	// be consulted at all).
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error)
}

// ExtractRequest bounds one extraction pass over a tool's stores.
type ExtractRequest struct {
	// Stores are the discovered locations to read, in discovery order.
	Stores []discovery.Store

	// ProjectRoot, when set, restricts extraction to conversations
	// belonging to that project (only Claude Code encodes this today).
	ProjectRoot string

	// Limit caps the number of conversations returned. Zero means the
	// extractor's own default.
	Limit int

	// Since drops conversations last updated before this instant.
	// Zero means no cutoff.
	Since time.Time

	// IncludeMessages asks for full message bodies where the store has
	// them cheaply. Extractors may ignore it when bodies live outside
	// the scanned tables.
	IncludeMessages bool
}

// ExtractResult is one tool's raw conversations plus counters.
type ExtractResult struct {
	Conversations []Conversation
	Stats         Stats

	// Errors holds contained per-store and per-record failures, each
	// wrapping one of the error kinds above. Never fatal by itself.
	Errors []error
}

// Stats are the per-source counters surfaced in tool results.
type Stats struct {
	Stores       int   `json:"stores"`
	Scanned      int   `json:"scanned"`
	Extracted    int   `json:"extracted"`
	Skipped      int   `json:"skipped"`
	DecodeErrors int   `json:"decode_errors"`
	ElapsedMS    int64 `json:"elapsed_ms"`
}

// Conversation is the raw per-tool record. Field population varies by
// tool; the normalizer fills canonical defaults.
type Conversation struct {
	Tool  schema.SourceTool
	ID    string
	Title string

	CreatedAt schema.Timestamp
	UpdatedAt schema.Timestamp

	// Messages may be empty when the store keeps bodies elsewhere
	// (Cursor composer heads). MessageCount then carries the estimate;
	// when zero, len(Messages) is the count.
	Messages     []Message
	MessageCount int

	// Tool-specific passthrough. WorkspaceID is the Cursor workspace
	// hash; SessionID is the Claude Code / Windsurf session identifier.
	WorkspaceID  string
	DatabasePath string
	SessionID    string
	SessionData  map[string]any
	Metadata     map[string]any
}

// Count returns the effective message count.
func (c Conversation) Count() int {
	if c.MessageCount > 0 {
		return c.MessageCount
	}
	return len(c.Messages)
}

// Finalize applies the request's shared post-processing to a result:
// merge conversations that surfaced from more than one store, drop
// those older than Since, order by recency with a stable ID tie-break,
// truncate to Limit, and settle the extracted counter. Conversations
// without a timestamp survive the cutoff; they score zero on recency
// downstream instead.
func Finalize(res *ExtractResult, req ExtractRequest) {
	convs := mergeByID(res.Conversations)
	if !req.Since.IsZero() {
		kept := convs[:0]
		for _, c := range convs {
			if !c.UpdatedAt.IsZero() && c.UpdatedAt.Time().Before(req.Since) {
				res.Stats.Skipped++
				continue
			}
			kept = append(kept, c)
		}
		convs = kept
	}
	sort.SliceStable(convs, func(i, j int) bool {
		ti, tj := convs[i].UpdatedAt.EpochMillis(), convs[j].UpdatedAt.EpochMillis()
		if ti != tj {
			return ti > tj
		}
		return convs[i].ID < convs[j].ID
	})
	if req.Limit > 0 && len(convs) > req.Limit {
		convs = convs[:req.Limit]
	}
	res.Conversations = convs
	res.Stats.Extracted = len(convs)
}

// mergeByID collapses conversations sharing an ID. A Cursor composer
// surfaces twice, as a workspace head and as a global body; the merged
// record keeps the richer half of each field.
func mergeByID(convs []Conversation) []Conversation {
	index := make(map[string]int, len(convs))
	out := convs[:0]
	for _, c := range convs {
		if c.ID == "" {
			out = append(out, c)
			continue
		}
		if at, ok := index[c.ID]; ok {
			out[at] = merge(out[at], c)
			continue
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

func merge(a, b Conversation) Conversation {
	if a.Title == "" {
		a.Title = b.Title
	}
	if len(b.Messages) > len(a.Messages) {
		a.Messages = b.Messages
	}
	if b.MessageCount > a.MessageCount {
		a.MessageCount = b.MessageCount
	}
	if a.CreatedAt.IsZero() || (!b.CreatedAt.IsZero() && b.CreatedAt.EpochMillis() < a.CreatedAt.EpochMillis()) {
		a.CreatedAt = b.CreatedAt
	}
	if b.UpdatedAt.EpochMillis() > a.UpdatedAt.EpochMillis() {
		a.UpdatedAt = b.UpdatedAt
	}
	if a.WorkspaceID == "" {
		a.WorkspaceID = b.WorkspaceID
	}
	if a.SessionID == "" {
		a.SessionID = b.SessionID
	}
	if a.SessionData == nil {
		a.SessionData = b.SessionData
	}
	if a.Metadata == nil {
		a.Metadata = b.Metadata
	}
	if a.DatabasePath == "" {
		a.DatabasePath = b.DatabasePath
	}
	return a
}

// Message is one conversation turn.
type Message struct {
	Type       string
	Role       string
	Content    string
	Timestamp  schema.Timestamp
	ParentUUID string
}
