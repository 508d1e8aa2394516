// Package cursor extracts conversations from Cursor's SQLite state
// databases.
//
// Workspace databases keep several generations of chat layout under the
// ItemTable key/value table: modern composer metadata, the prompt and
// generation logs they replaced, and two legacy chat panels. The global
// database keeps full composer bodies under cursorDiskKV. All of them
// are read; records are deduplicated by composer ID downstream.
package cursor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
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

// Candidate ItemTable keys, newest layout first.
const (
	keyComposerData = "composer.composerData"
	keyPrompts      = "aiService.prompts"
	keyGenerations  = "aiService.generations"
	keyChatData     = "workbench.panel.aichat.view.aichat.chatdata"
	keySessions     = "interactive.sessions"
)

var workspaceKeys = []string{
	keyComposerData, keyPrompts, keyGenerations, keyChatData, keySessions,
}

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	reconstructedTitle = "Reconstructed Conversation"
)

// Extractor reads Cursor workspace and global databases.
type Extractor struct {
	pool     *dbpool.Pool
	validate *content.Validator
	unit     string
	log      *logging.Logger

	decodeWarn rate.Sometimes
}

// New creates a Cursor extractor. unit is the timestamp unit policy
// ("auto", "ms", or "s").
func New(pool *dbpool.Pool, validator *content.Validator, unit string, log *logging.Logger) *Extractor {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	return &Extractor{
		pool:       pool,
		validate:   validator,
		unit:       unit,
		log:        log.Named("cursor"),
		decodeWarn: rate.Sometimes{First: 5, Interval: time.Minute},
	}
}

// Tool implements sources.Provider.
func (e *Extractor) Tool() schema.SourceTool { return schema.ToolCursor }

// Extract implements sources.Provider. Every store is consulted; a
// store that cannot be opened contributes an ErrUnavailable entry and
// the rest continue.
func (e *Extractor) Extract(ctx context.Context, req sources.ExtractRequest) (*sources.ExtractResult, error) {
	start := time.Now()
	res := &sources.ExtractResult{}

	for _, store := range req.Stores {
		if store.Tool != schema.ToolCursor {
			continue
		}
		res.Stats.Stores++

		var err error
		switch store.Kind {
		case discovery.KindWorkspaceDB:
			err = e.extractWorkspace(ctx, store, res)
		case discovery.KindGlobalDB:
			err = e.extractGlobal(ctx, store, req, res)
		default:
			continue
		}
		if err != nil {
			res.Errors = append(res.Errors, e.storeError(store, err))
			e.log.Warn(ctx, "cursor store skipped",
				zap.String("path", store.Path), zap.Error(err))
		}
	}

	sources.Finalize(res, req)
	res.Stats.ElapsedMS = time.Since(start).Milliseconds()
	return res, nil
}

// storeError maps transport-level failures onto the shared error kinds.
func (e *Extractor) storeError(store discovery.Store, err error) error {
	kind := sources.ErrUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = sources.ErrTimeout
	}
	return fmt.Errorf("%w: %s: %v", kind, store.Path, err)
}

// extractWorkspace reads the five candidate keys from one workspace
// database. A key with malformed JSON is dropped; the others still
// contribute.
func (e *Extractor) extractWorkspace(ctx context.Context, store discovery.Store, res *sources.ExtractResult) error {
	var items map[string][]byte
	err := e.pool.WithConnection(ctx, store.Path, func(ctx context.Context, db *sql.DB) error {
		var err error
		items, err = readItems(ctx, db, workspaceKeys)
		return err
	})
	if err != nil {
		return err
	}

	workspaceID := store.WorkspaceID
	if workspaceID == "" {
		workspaceID = filepath.Base(filepath.Dir(store.Path))
	}

	composers := e.parseComposers(ctx, store, items[keyComposerData], res)
	if len(composers) == 0 {
		composers = e.reconstruct(ctx, store, items[keyPrompts], items[keyGenerations], res)
	}
	composers = append(composers, e.parseChatData(ctx, store, items[keyChatData], res)...)
	composers = append(composers, e.parseSessions(ctx, store, items[keySessions], res)...)

	for i := range composers {
		composers[i].Tool = schema.ToolCursor
		composers[i].WorkspaceID = workspaceID
		composers[i].DatabasePath = store.Path
	}
	res.Conversations = append(res.Conversations, composers...)
	return nil
}

// readItems fetches each key once. Missing keys are simply absent from
// the returned map.
func readItems(ctx context.Context, db *sql.DB, keys []string) (map[string][]byte, error) {
	items := make(map[string][]byte, len(keys))
	for _, key := range keys {
		var value []byte
		err := db.QueryRowContext(ctx, `SELECT value FROM ItemTable WHERE key = ?`, key).Scan(&value)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			return nil, err
		}
		items[key] = value
	}
	return items, nil
}

// composerHead is one entry of composer.composerData.
type composerHead struct {
	ComposerID    string `json:"composerId"`
	Name          string `json:"name"`
	CreatedAt     any    `json:"createdAt"`
	LastUpdatedAt any    `json:"lastUpdatedAt"`
}

// parseComposers handles both the modern {"allComposers": [...]} wrapper
// and the legacy bare array.
func (e *Extractor) parseComposers(ctx context.Context, store discovery.Store, raw []byte, res *sources.ExtractResult) []sources.Conversation {
	if len(raw) == 0 {
		return nil
	}
	var heads []composerHead
	var wrapper struct {
		AllComposers []composerHead `json:"allComposers"`
	}
	wErr := json.Unmarshal(raw, &wrapper)
	if wErr == nil && wrapper.AllComposers != nil {
		heads = wrapper.AllComposers
	} else {
		var legacy []composerHead
		if lErr := json.Unmarshal(raw, &legacy); lErr == nil {
			heads = legacy
		} else if wErr != nil {
			e.noteDecodeError(ctx, store, keyComposerData, wErr, res)
			return nil
		}
	}

	convs := make([]sources.Conversation, 0, len(heads))
	for _, h := range heads {
		res.Stats.Scanned++
		if h.ComposerID == "" {
			res.Stats.Skipped++
			continue
		}
		convs = append(convs, sources.Conversation{
			ID:        h.ComposerID,
			Title:     h.Name,
			CreatedAt: sources.ParseTimestamp(h.CreatedAt, e.unit),
			UpdatedAt: sources.ParseTimestamp(h.LastUpdatedAt, e.unit),
		})
	}
	return convs
}

// logEntry is one aiService.prompts / aiService.generations element.
type logEntry struct {
	ConversationID  string `json:"conversationId"`
	Text            string `json:"text"`
	TextDescription string `json:"textDescription"`
	UnixMS          any    `json:"unixMs"`
}

func (l logEntry) body() string {
	if l.Text != "" {
		return l.Text
	}
	return l.TextDescription
}

// reconstruct synthesizes conversations from the prompt and generation
// logs when no composer metadata exists. Entries are grouped by
// conversationId; entries without one share a single bucket.
func (e *Extractor) reconstruct(ctx context.Context, store discovery.Store, prompts, generations []byte, res *sources.ExtractResult) []sources.Conversation {
	type turn struct {
		role string
		logEntry
	}
	groups := make(map[string][]turn)

	collect := func(raw []byte, key, role string) {
		if len(raw) == 0 {
			return
		}
		var entries []logEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			e.noteDecodeError(ctx, store, key, err, res)
			return
		}
		for _, entry := range entries {
			res.Stats.Scanned++
			id := entry.ConversationID
			if id == "" {
				id = "reconstructed"
			}
			groups[id] = append(groups[id], turn{role: role, logEntry: entry})
		}
	}
	collect(prompts, keyPrompts, roleUser)
	collect(generations, keyGenerations, roleAssistant)

	convs := make([]sources.Conversation, 0, len(groups))
	for id, turns := range groups {
		sort.SliceStable(turns, func(i, j int) bool {
			ti := sources.ParseTimestamp(turns[i].UnixMS, e.unit).EpochMillis()
			tj := sources.ParseTimestamp(turns[j].UnixMS, e.unit).EpochMillis()
			return ti < tj
		})
		msgs := make([]sources.Message, 0, len(turns))
		var first, last schema.Timestamp
		for _, t := range turns {
			ts := sources.ParseTimestamp(t.UnixMS, e.unit)
			if !ts.IsZero() {
				if first.IsZero() {
					first = ts
				}
				last = ts
			}
			msgs = append(msgs, sources.Message{
				Role:      t.role,
				Content:   t.body(),
				Timestamp: ts,
			})
		}
		convs = append(convs, sources.Conversation{
			ID:        id,
			Title:     reconstructedTitle,
			CreatedAt: first,
			UpdatedAt: last,
			Messages:  msgs,
		})
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
	return convs
}

// chatTab is one tab of the legacy aichat panel.
type chatTab struct {
	TabID        string `json:"tabId"`
	ChatTitle    string `json:"chatTitle"`
	LastSendTime any    `json:"lastSendTime"`
	Bubbles      []struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		RawText string `json:"rawText"`
	} `json:"bubbles"`
}

func (e *Extractor) parseChatData(ctx context.Context, store discovery.Store, raw []byte, res *sources.ExtractResult) []sources.Conversation {
	if len(raw) == 0 {
		return nil
	}
	var data struct {
		Tabs []chatTab `json:"tabs"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		e.noteDecodeError(ctx, store, keyChatData, err, res)
		return nil
	}

	convs := make([]sources.Conversation, 0, len(data.Tabs))
	for _, tab := range data.Tabs {
		res.Stats.Scanned++
		if tab.TabID == "" || len(tab.Bubbles) == 0 {
			res.Stats.Skipped++
			continue
		}
		msgs := make([]sources.Message, 0, len(tab.Bubbles))
		for _, b := range tab.Bubbles {
			role := roleAssistant
			if b.Type == "user" {
				role = roleUser
			}
			body := b.Text
			if body == "" {
				body = b.RawText
			}
			msgs = append(msgs, sources.Message{Type: b.Type, Role: role, Content: body})
		}
		ts := sources.ParseTimestamp(tab.LastSendTime, e.unit)
		convs = append(convs, sources.Conversation{
			ID:        tab.TabID,
			Title:     tab.ChatTitle,
			CreatedAt: ts,
			UpdatedAt: ts,
			Messages:  msgs,
		})
	}
	return convs
}

// parseSessions handles interactive.sessions, whose shape drifted across
// releases. Every candidate goes through the content validator.
func (e *Extractor) parseSessions(ctx context.Context, store discovery.Store, raw []byte, res *sources.ExtractResult) []sources.Conversation {
	if len(raw) == 0 || e.validate == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		e.noteDecodeError(ctx, store, keySessions, err, res)
		return nil
	}

	var candidates []map[string]any
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				candidates = append(candidates, m)
			}
		}
	case map[string]any:
		candidates = append(candidates, v)
	default:
		return nil
	}

	var convs []sources.Conversation
	for i, m := range candidates {
		res.Stats.Scanned++
		if verdict := e.validate.IsConversation(m); !verdict.OK {
			res.Stats.Skipped++
			continue
		}
		id := stringField(m, "sessionId", "id")
		if id == "" {
			id = fmt.Sprintf("interactive-%d", i)
		}
		title := stringField(m, "title", "name", "customTitle")
		if title == "" {
			title = "Interactive Session"
		}
		convs = append(convs, sources.Conversation{
			ID:          id,
			Title:       title,
			CreatedAt:   sources.ParseTimestamp(m["createdAt"], e.unit),
			UpdatedAt:   sources.ParseTimestamp(m["lastUpdatedAt"], e.unit),
			SessionData: m,
		})
	}
	return convs
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// globalComposer is one cursorDiskKV composerData:{id} value. Bodies
// live either inline under "conversation" or as separate bubbleId rows
// referenced by the headers list.
type globalComposer struct {
	ComposerID    string   `json:"composerId"`
	Name          string   `json:"name"`
	CreatedAt     any      `json:"createdAt"`
	LastUpdatedAt any      `json:"lastUpdatedAt"`
	Conversation  []bubble `json:"conversation"`

	FullConversationHeadersOnly []struct {
		BubbleID string `json:"bubbleId"`
	} `json:"fullConversationHeadersOnly"`
}

// bubble is one message of a global composer conversation. Type 1 is
// the user, type 2 the assistant.
type bubble struct {
	BubbleID string `json:"bubbleId"`
	Type     int    `json:"type"`
	Text     string `json:"text"`
}

func (b bubble) role() string {
	if b.Type == 1 {
		return roleUser
	}
	return roleAssistant
}

// extractGlobal reads composer bodies from the global database. The
// cursorDiskKV table only exists on newer installs, so its presence is
// probed first under the schema timeout.
func (e *Extractor) extractGlobal(ctx context.Context, store discovery.Store, req sources.ExtractRequest, res *sources.ExtractResult) error {
	var hasTable bool
	err := e.pool.WithSchemaCheck(ctx, store.Path, func(ctx context.Context, db *sql.DB) error {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'cursorDiskKV'`).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		hasTable = err == nil
		return err
	})
	if err != nil {
		return err
	}
	if !hasTable {
		return nil
	}

	return e.pool.WithConnection(ctx, store.Path, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT key, value FROM cursorDiskKV WHERE key LIKE 'composerData:%'`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			var value []byte
			if err := rows.Scan(&key, &value); err != nil {
				return err
			}
			res.Stats.Scanned++

			var gc globalComposer
			if err := json.Unmarshal(value, &gc); err != nil {
				e.noteDecodeError(ctx, store, key, err, res)
				continue
			}
			if gc.ComposerID == "" {
				gc.ComposerID = key[len("composerData:"):]
			}

			conv := sources.Conversation{
				Tool:         schema.ToolCursor,
				ID:           gc.ComposerID,
				Title:        gc.Name,
				CreatedAt:    sources.ParseTimestamp(gc.CreatedAt, e.unit),
				UpdatedAt:    sources.ParseTimestamp(gc.LastUpdatedAt, e.unit),
				DatabasePath: store.Path,
			}
			switch {
			case len(gc.Conversation) > 0:
				if req.IncludeMessages {
					conv.Messages = bubbleMessages(gc.Conversation)
				}
				conv.MessageCount = len(gc.Conversation)
			case len(gc.FullConversationHeadersOnly) > 0:
				conv.MessageCount = len(gc.FullConversationHeadersOnly)
				if req.IncludeMessages {
					msgs, err := fetchBubbles(ctx, db, gc.ComposerID)
					if err != nil {
						e.noteDecodeError(ctx, store, key, err, res)
					} else {
						conv.Messages = msgs
					}
				}
			}
			res.Conversations = append(res.Conversations, conv)
		}
		return rows.Err()
	})
}

func bubbleMessages(bubbles []bubble) []sources.Message {
	msgs := make([]sources.Message, 0, len(bubbles))
	for _, b := range bubbles {
		if b.Text == "" {
			continue
		}
		msgs = append(msgs, sources.Message{Role: b.role(), Content: b.Text})
	}
	return msgs
}

// fetchBubbles loads the separate bubbleId rows for one composer, in
// row order. Empty bubbles (tool traffic without text) are dropped.
func fetchBubbles(ctx context.Context, db *sql.DB, composerID string) ([]sources.Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT value FROM cursorDiskKV WHERE key LIKE 'bubbleId:' || ? || ':%'`, composerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []sources.Message
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		var b bubble
		if err := json.Unmarshal(value, &b); err != nil {
			continue
		}
		if b.Text == "" {
			continue
		}
		msgs = append(msgs, sources.Message{Role: b.role(), Content: b.Text})
	}
	return msgs, rows.Err()
}

// noteDecodeError counts a dropped record and logs it, throttled so a
// corrupt store cannot flood the log.
func (e *Extractor) noteDecodeError(ctx context.Context, store discovery.Store, key string, err error, res *sources.ExtractResult) {
	res.Stats.DecodeErrors++
	res.Errors = append(res.Errors, fmt.Errorf("%w: %s %s: %v", sources.ErrDecode, store.Path, key, err))
	e.decodeWarn.Do(func() {
		e.log.Warn(ctx, "cursor record dropped",
			zap.String("path", store.Path),
			zap.String("key", key),
			zap.Error(err))
	})
}
