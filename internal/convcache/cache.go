// Package convcache persists scored recall results on disk so repeated
// requests with an unchanged context skip extraction entirely.
//
// Each (tool, context hash) pair owns one directory holding a record
// payload and a small metadata file:
//
//	<root>/cache/conversations/<tool>/<hash>/conversations.json
//	<root>/cache/conversations/<tool>/<hash>/metadata.json
//
// The context hash fingerprints the resolved project root, the sorted
// keyword set, and the first project manifest's mtime; editing a
// manifest or changing keywords lands in a fresh directory. Entries
// are valid while younger than the TTL and carrying the current hash.
// Every cache failure is a miss, never an error for the caller.
package convcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// ErrCache marks persistence failures. Callers log and move on; a
// broken cache degrades to recomputation, never to a failed request.
var ErrCache = errors.New("cache error")

const (
	conversationsFile = "conversations.json"
	metadataFile      = "metadata.json"

	// lockStripes bounds concurrent writers per root without a lock
	// per entry directory.
	lockStripes = 16
)

// manifestNames are probed in order; the first hit's mtime feeds the
// context hash so dependency changes invalidate cached results.
var manifestNames = []string{
	"package.json",
	"pyproject.toml",
	"requirements.txt",
	"Cargo.toml",
	"go.mod",
}

// Metadata describes one cached entry. Project is the sanitized
// identifier of the project the entry was computed for; it makes the
// hash-named directories inspectable without reversing the hash.
type Metadata struct {
	Timestamp         time.Time `json:"timestamp"`
	Project           string    `json:"project,omitempty"`
	ContextHash       string    `json:"context_hash"`
	ConversationCount int       `json:"conversation_count"`
	TotalFound        int       `json:"total_found"`
	ProcessingTimeMS  int64     `json:"processing_time_ms"`
}

// Entry is a cached result set plus the stats needed to rebuild the
// response envelope.
type Entry struct {
	Project          string
	Records          []schema.Record
	TotalFound       int
	ProcessingTimeMS int64
}

// Cache is the on-disk conversation cache. The zero value is unusable;
// construct with New.
type Cache struct {
	root    string
	ttl     time.Duration
	min     int
	enabled bool
	log     *logging.Logger
	now     func() time.Time

	locks [lockStripes]sync.Mutex
}

// New builds a cache rooted at cfg.Dir. A disabled config yields a
// cache whose Load always misses and whose Store is a no-op.
func New(cfg config.CacheConfig, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	ttl := time.Duration(cfg.TTL)
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	min := cfg.MinRecords
	if min <= 0 {
		min = 5
	}
	return &Cache{
		root:    expandHome(cfg.Dir),
		ttl:     ttl,
		min:     min,
		enabled: cfg.Enabled(),
		log:     log.Named("convcache"),
		now:     time.Now,
	}
}

// ContextHash fingerprints the request context: resolved project root,
// sorted keywords, and the first-found manifest's name and mtime.
func ContextHash(projectRoot string, keywords []string) string {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString(projectRoot)
	for _, kw := range sorted {
		sb.WriteByte('\n')
		sb.WriteString(kw)
	}
	if name, mtime, ok := firstManifest(projectRoot); ok {
		fmt.Fprintf(&sb, "\n%s:%d", name, mtime.UnixNano())
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
}

// Load returns the entry cached under (tool, hash). ok is false on
// miss, expiry, hash mismatch, or any read problem.
func (c *Cache) Load(ctx context.Context, tool, hash string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}
	dir := c.entryDir(tool, hash)
	mu := c.lockFor(dir)
	mu.Lock()
	defer mu.Unlock()

	meta, err := readMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Debug(ctx, "cache metadata unreadable, treating as miss",
				zap.String("tool", tool), zap.Error(err))
		}
		return nil, false
	}
	if meta.ContextHash != hash {
		c.log.Debug(ctx, "cache context hash changed", zap.String("tool", tool))
		return nil, false
	}
	if age := c.now().Sub(meta.Timestamp); age >= c.ttl {
		c.log.Debug(ctx, "cache entry expired",
			zap.String("tool", tool), zap.Duration("age", age))
		return nil, false
	}

	records, err := readRecords(filepath.Join(dir, conversationsFile))
	if err != nil {
		c.log.Debug(ctx, "cache records unreadable, treating as miss",
			zap.String("tool", tool), zap.Error(err))
		return nil, false
	}
	if len(records) != meta.ConversationCount {
		c.log.Debug(ctx, "cache record count mismatch, treating as miss",
			zap.String("tool", tool),
			zap.Int("stored", len(records)),
			zap.Int("expected", meta.ConversationCount))
		return nil, false
	}

	return &Entry{
		Project:          meta.Project,
		Records:          records,
		TotalFound:       meta.TotalFound,
		ProcessingTimeMS: meta.ProcessingTimeMS,
	}, true
}

// Store persists the entry under (tool, hash). Result sets at or below
// the minimum size are not worth a disk round trip and are skipped.
func (c *Cache) Store(ctx context.Context, tool, hash string, e Entry) error {
	if !c.enabled {
		return nil
	}
	if len(e.Records) <= c.min {
		c.log.Trace(ctx, "result set below cache minimum, skipping",
			zap.String("tool", tool), zap.Int("records", len(e.Records)))
		return nil
	}
	dir := c.entryDir(tool, hash)
	mu := c.lockFor(dir)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: failed to create cache directory: %v", ErrCache, err)
	}

	// Records first, metadata last: metadata is the validity marker,
	// so a crash in between leaves an invisible entry, not a torn one.
	if err := writeJSON(filepath.Join(dir, conversationsFile), e.Records); err != nil {
		return fmt.Errorf("%w: %v", ErrCache, err)
	}
	meta := Metadata{
		Timestamp:         c.now().UTC(),
		Project:           e.Project,
		ContextHash:       hash,
		ConversationCount: len(e.Records),
		TotalFound:        e.TotalFound,
		ProcessingTimeMS:  e.ProcessingTimeMS,
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return fmt.Errorf("%w: %v", ErrCache, err)
	}
	return nil
}

func (c *Cache) entryDir(tool, hash string) string {
	return filepath.Join(c.root, "cache", "conversations", tool, hash)
}

func (c *Cache) lockFor(dir string) *sync.Mutex {
	return &c.locks[xxhash.Sum64String(dir)%lockStripes]
}

func firstManifest(root string) (string, time.Time, bool) {
	for _, name := range manifestNames {
		fi, err := os.Stat(filepath.Join(root, name))
		if err == nil && !fi.IsDir() {
			return name, fi.ModTime(), true
		}
	}
	return "", time.Time{}, false
}

func readMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}

func readRecords(path string) ([]schema.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []schema.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

// writeJSON writes atomically: tmp file in the same directory, then
// rename over the target.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory. An
// unresolvable home leaves the path untouched; the first write then
// fails loudly instead of landing somewhere surprising.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
