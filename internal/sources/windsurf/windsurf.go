// Package windsurf extracts conversations from Windsurf's SQLite state
// databases.
//
// Windsurf shares the VS Code ItemTable layout but has no stable chat
// schema across releases. The session store key is tried first; when it
// is absent the whole table is scanned for chat-looking keys and every
// candidate value must pass the conversation-shape validator before it
// becomes a record.
package windsurf

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/gandalf/internal/content"
	"github.com/fyrsmithlabs/gandalf/internal/dbpool"
	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// Session store keys, most specific first.
var sessionStoreKeys = []string{
	"chat.sessionStore",
	"windsurf.chatSessionStore",
}

// keyPatterns drive the fallback table scan.
var keyPatterns = []string{
	"chat", "conversation", "session", "message", "cascade", "codeium",
}

// Extractor reads Windsurf state databases.
type Extractor struct {
	pool     *dbpool.Pool
	validate *content.Validator
	unit     string
	log      *logging.Logger

	decodeWarn rate.Sometimes
}

// New creates a Windsurf extractor. unit is the timestamp unit policy
// ("auto", "ms", or "s").
func New(pool *dbpool.Pool, validator *content.Validator, unit string, log *logging.Logger) *Extractor {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	if validator == nil {
		validator = content.NewValidator(content.Config{})
	}
	return &Extractor{
		pool:       pool,
		validate:   validator,
		unit:       unit,
		log:        log.Named("windsurf"),
		decodeWarn: rate.Sometimes{First: 5, Interval: time.Minute},
	}
}

// Tool implements sources.Provider.
func (e *Extractor) Tool() schema.SourceTool { return schema.ToolWindsurf }

// Extract implements sources.Provider.
func (e *Extractor) Extract(ctx context.Context, req sources.ExtractRequest) (*sources.ExtractResult, error) {
	start := time.Now()
	res := &sources.ExtractResult{}

	for _, store := range req.Stores {
		if store.Tool != schema.ToolWindsurf {
			continue
		}
		if store.Kind != discovery.KindWorkspaceDB && store.Kind != discovery.KindGlobalDB {
			continue
		}
		res.Stats.Stores++

		if err := e.extractStore(ctx, store, res); err != nil {
			kind := sources.ErrUnavailable
			if errors.Is(err, context.DeadlineExceeded) {
				kind = sources.ErrTimeout
			}
			res.Errors = append(res.Errors, fmt.Errorf("%w: %s: %v", kind, store.Path, err))
			e.log.Warn(ctx, "windsurf store skipped",
				zap.String("path", store.Path), zap.Error(err))
		}
	}

	sources.Finalize(res, req)
	res.Stats.ElapsedMS = time.Since(start).Milliseconds()
	return res, nil
}

func (e *Extractor) extractStore(ctx context.Context, store discovery.Store, res *sources.ExtractResult) error {
	var convs []sources.Conversation
	err := e.pool.WithConnection(ctx, store.Path, func(ctx context.Context, db *sql.DB) error {
		for _, key := range sessionStoreKeys {
			raw, err := readValue(ctx, db, key)
			if err != nil {
				return err
			}
			if len(raw) == 0 {
				continue
			}
			fromStore, ok := e.parseSessionStore(ctx, store, key, raw, res)
			if ok {
				convs = fromStore
				return nil
			}
		}
		scanned, err := e.scanTable(ctx, db, store, res)
		if err != nil {
			return err
		}
		convs = scanned
		return nil
	})
	if err != nil {
		return err
	}

	for i := range convs {
		convs[i].Tool = schema.ToolWindsurf
		convs[i].WorkspaceID = store.WorkspaceID
		convs[i].DatabasePath = store.Path
	}
	res.Conversations = append(res.Conversations, convs...)
	return nil
}

func readValue(ctx context.Context, db *sql.DB, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return value, err
}

// parseSessionStore handles the {entries: {id: {...}}} layout. The
// second return is false when the value has some other shape and the
// caller should fall back to the table scan.
func (e *Extractor) parseSessionStore(ctx context.Context, store discovery.Store, key string, raw []byte, res *sources.ExtractResult) ([]sources.Conversation, bool) {
	var wrapper struct {
		Entries map[string]json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		// Some other JSON shape falls through to the table scan; only
		// broken JSON counts as damage.
		if !json.Valid(raw) {
			e.noteDecodeError(ctx, store, key, err, res)
		}
		return nil, false
	}
	if len(wrapper.Entries) == 0 {
		return nil, false
	}

	ids := make([]string, 0, len(wrapper.Entries))
	for id := range wrapper.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var convs []sources.Conversation
	for _, id := range ids {
		res.Stats.Scanned++
		var entry map[string]any
		if err := json.Unmarshal(wrapper.Entries[id], &entry); err != nil {
			e.noteDecodeError(ctx, store, key+":"+id, err, res)
			continue
		}
		if verdict := e.validate.IsConversation(entry); !verdict.OK {
			res.Stats.Skipped++
			continue
		}
		conv := e.entryConversation(id, key, entry)
		convs = append(convs, conv)
	}
	return convs, true
}

// entryConversation maps one session entry onto the raw model. Field
// names drifted between releases, so each is probed through a small
// alias list.
func (e *Extractor) entryConversation(id, sourceKey string, entry map[string]any) sources.Conversation {
	conv := sources.Conversation{
		ID:        id,
		SessionID: id,
		Title:     stringField(entry, "title", "name", "customTitle", "summary"),
		CreatedAt: e.timeField(entry, "createdAt", "created_at", "createdAtMs", "timestamp"),
		UpdatedAt: e.timeField(entry, "lastUpdatedAt", "updated_at", "lastModified", "lastMessageAt"),
		Metadata: map[string]any{
			"source_key": sourceKey,
			"entry_keys": sortedKeys(entry),
		},
	}

	list, ok := entry["messages"].([]any)
	if !ok {
		list, ok = entry["conversation"].([]any)
	}
	if !ok {
		if m, isMap := entry["messages"].(map[string]any); isMap {
			conv.MessageCount = len(m)
		}
		return conv
	}
	conv.MessageCount = len(list)
	conv.Messages = e.toMessages(list)
	return conv
}

// scanTable is the fallback for stores without a session store key:
// every chat-looking row is decoded and validated, recursing one level
// into container values.
func (e *Extractor) scanTable(ctx context.Context, db *sql.DB, store discovery.Store, res *sources.ExtractResult) ([]sources.Conversation, error) {
	var sb strings.Builder
	args := make([]any, 0, len(keyPatterns))
	sb.WriteString(`SELECT key, value FROM ItemTable WHERE `)
	for i, pattern := range keyPatterns {
		if i > 0 {
			sb.WriteString(` OR `)
		}
		sb.WriteString(`key LIKE ?`)
		args = append(args, "%"+pattern+"%")
	}

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []sources.Conversation
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}

		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			// Most rows under these patterns are not JSON at all
			// (layout blobs, plain strings); that is not damage worth
			// reporting.
			continue
		}

		res.Stats.Scanned++
		if conv, ok := e.tryCandidate(key, key, decoded); ok {
			convs = append(convs, conv)
			continue
		}
		res.Stats.Skipped++

		m, ok := decoded.(map[string]any)
		if !ok {
			continue
		}
		for _, child := range sortedKeys(m) {
			res.Stats.Scanned++
			if conv, ok := e.tryCandidate(key, key+":"+child, m[child]); ok {
				convs = append(convs, conv)
			} else {
				res.Stats.Skipped++
			}
		}
	}
	return convs, rows.Err()
}

// tryCandidate validates one decoded value and, if it passes, shapes it
// into a conversation.
func (e *Extractor) tryCandidate(sourceKey, id string, v any) (sources.Conversation, bool) {
	if verdict := e.validate.IsConversation(v); !verdict.OK {
		return sources.Conversation{}, false
	}
	switch t := v.(type) {
	case map[string]any:
		return e.entryConversation(id, sourceKey, t), true
	case []any:
		return sources.Conversation{
			ID:        id,
			SessionID: id,
			Messages:  e.toMessages(t),
			Metadata:  map[string]any{"source_key": sourceKey},
		}, true
	}
	return sources.Conversation{}, false
}

// toMessages lifts a message list. Items without plain-text content are
// counted by the caller but not carried.
func (e *Extractor) toMessages(list []any) []sources.Message {
	msgs := make([]sources.Message, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		body := stringField(m, "content", "text", "message")
		if body == "" {
			continue
		}
		role := stringField(m, "role", "type")
		msgs = append(msgs, sources.Message{
			Role:      role,
			Content:   body,
			Timestamp: e.timeField(m, "timestamp", "ts", "createdAt"),
		})
	}
	return msgs
}

func (e *Extractor) timeField(m map[string]any, keys ...string) schema.Timestamp {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if ts := sources.ParseTimestamp(v, e.unit); !ts.IsZero() {
				return ts
			}
		}
	}
	return schema.Timestamp{}
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// noteDecodeError counts a dropped value and logs it, throttled.
func (e *Extractor) noteDecodeError(ctx context.Context, store discovery.Store, key string, err error, res *sources.ExtractResult) {
	res.Stats.DecodeErrors++
	res.Errors = append(res.Errors, fmt.Errorf("%w: %s %s: %v", sources.ErrDecode, store.Path, key, err))
	e.decodeWarn.Do(func() {
		e.log.Warn(ctx, "windsurf record dropped",
			zap.String("path", store.Path),
			zap.String("key", key),
			zap.Error(err))
	})
}
