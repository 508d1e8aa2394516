// Package dbpool provides pooled read-only SQLite handles keyed by
// database path.
//
// Editor state databases (Cursor, Windsurf) are owned by another process
// that may be writing at any moment. Handles here are strictly read-only,
// carry a busy timeout, and are health-checked before reuse so a database
// deleted or rotated between calls never serves stale connections.
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/logging"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	// ErrUnavailable marks a database that could not be opened or pinged.
	// Callers treat the source as empty rather than failing the request.
	ErrUnavailable = errors.New("database unavailable")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pool closed")
)

// Options tunes the pool. Zero values take the documented defaults.
type Options struct {
	MaxIdlePerKey    int
	BusyTimeout      time.Duration
	OperationTimeout time.Duration
	SchemaTimeout    time.Duration
}

// OptionsFromConfig maps the pool config section onto Options.
func OptionsFromConfig(cfg config.PoolConfig) Options {
	return Options{
		MaxIdlePerKey:    cfg.MaxIdlePerKey,
		BusyTimeout:      cfg.BusyTimeout.Duration(),
		OperationTimeout: cfg.OperationTimeout.Duration(),
		SchemaTimeout:    cfg.SchemaTimeout.Duration(),
	}
}

func (o *Options) applyDefaults() {
	if o.MaxIdlePerKey <= 0 {
		o.MaxIdlePerKey = 5
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 2 * time.Second
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 15 * time.Second
	}
	if o.SchemaTimeout <= 0 {
		o.SchemaTimeout = 5 * time.Second
	}
}

// Pool keeps idle read-only handles per database path.
type Pool struct {
	opts Options
	log  *logging.Logger

	mu     sync.Mutex
	idle   map[string][]*handle
	closed bool
}

// handle wraps a single-connection *sql.DB.
type handle struct {
	db   *sql.DB
	path string
}

// New creates a pool. A nil logger is replaced with a no-op logger.
func New(opts Options, log *logging.Logger) *Pool {
	opts.applyDefaults()
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	return &Pool{
		opts: opts,
		log:  log.Named("dbpool"),
		idle: make(map[string][]*handle),
	}
}

// WithConnection runs fn with a read-only handle onto the database at
// path. Acquisition and fn share a deadline of OperationTimeout (or the
// caller's earlier one). The handle is returned to the pool even if fn
// panics.
func (p *Pool) WithConnection(ctx context.Context, path string, fn func(context.Context, *sql.DB) error) error {
	return p.withTimeout(ctx, p.opts.OperationTimeout, path, fn)
}

// WithSchemaCheck is WithConnection under the shorter structural-check
// deadline. Used for table existence probes and other cheap metadata
// queries where a slow database should fail fast.
func (p *Pool) WithSchemaCheck(ctx context.Context, path string, fn func(context.Context, *sql.DB) error) error {
	return p.withTimeout(ctx, p.opts.SchemaTimeout, path, fn)
}

func (p *Pool) withTimeout(ctx context.Context, timeout time.Duration, path string, fn func(context.Context, *sql.DB) error) error {
	key, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrUnavailable, path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := p.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer p.release(key, h)

	return fn(ctx, h.db)
}

// acquire pops a healthy idle handle or opens a new one. The mutex is
// held only around the map operation, never across I/O.
func (p *Pool) acquire(ctx context.Context, key string) (*handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		var h *handle
		if list := p.idle[key]; len(list) > 0 {
			h = list[len(list)-1]
			p.idle[key] = list[:len(list)-1]
		}
		p.mu.Unlock()

		if h == nil {
			return p.open(ctx, key)
		}

		if err := h.healthy(ctx); err == nil {
			return h, nil
		}
		p.log.Debug(ctx, "dropping unhealthy idle handle", zap.String("path", key))
		_ = h.db.Close()
	}
}

// open creates a new read-only handle.
func (p *Pool) open(ctx context.Context, key string) (*handle, error) {
	db, err := sql.Open("sqlite", key+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, key, err)
	}

	// SQLite serializes access per connection; one connection per handle,
	// the pool provides parallelism by holding several handles.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, key, err)
	}

	// Required pragmas: fail the open if they cannot be set.
	required := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", p.opts.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range required {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s on %s: %v", ErrUnavailable, pragma, key, err)
		}
	}

	// Best-effort pragmas: WAL lets reads proceed while the editor writes,
	// but switching journal modes needs write access and fails on
	// read-only media. Not fatal.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			p.log.Debug(ctx, "optional pragma failed",
				zap.String("pragma", pragma),
				zap.String("path", key),
				zap.Error(err))
		}
	}

	p.log.Trace(ctx, "opened database handle", zap.String("path", key))
	return &handle{db: db, path: key}, nil
}

// release returns a handle to the idle list, or closes it when the list
// is full or the pool is closed.
func (p *Pool) release(key string, h *handle) {
	p.mu.Lock()
	if !p.closed && len(p.idle[key]) < p.opts.MaxIdlePerKey {
		p.idle[key] = append(p.idle[key], h)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = h.db.Close()
}

// healthy verifies the handle still answers queries.
func (h *handle) healthy(ctx context.Context) error {
	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Stats reports pool occupancy for the debug listener.
type Stats struct {
	Keys        int `json:"keys"`
	IdleHandles int `json:"idle_handles"`
}

// Stats returns a snapshot of the idle pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Keys: len(p.idle)}
	for _, list := range p.idle {
		s.IdleHandles += len(list)
	}
	return s
}

// Close closes all idle handles. In-flight handles are closed on release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]*handle, 0)
	for _, list := range p.idle {
		all = append(all, list...)
	}
	p.idle = make(map[string][]*handle)
	p.mu.Unlock()

	var errs []error
	for _, h := range all {
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.path, err))
		}
	}
	return errors.Join(errs...)
}
