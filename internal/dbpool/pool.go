// ABOUTME: Bounded LRU pool of per-tenant SQLite handles with lazy provisioning
// ABOUTME: Coalesces concurrent first-opens so migrations run at most once per key

package dbpool

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	_ "modernc.org/sqlite"
)

// Named schemas a tenant database can be opened under. The default schema
// holds agents, sessions, results, stats and shared keys; commerce holds
// orders; audit is partitioned monthly.
const (
	SchemaDefault  = ""
	SchemaCommerce = "commerce"
	SchemaAudit    = "audit"
)

// DefaultMaxHandles bounds the pool when no explicit capacity is configured.
const DefaultMaxHandles = 50

var (
	// ErrNotFound is returned when the tenant's database file does not exist
	// and creation was not requested.
	ErrNotFound = errors.New("database not found")

	// ErrMigration is returned when schema migration fails mid-open. The pool
	// never retains a partially-migrated handle.
	ErrMigration = errors.New("migration failed")

	// ErrClosed is returned by Acquire after the pool has been closed.
	ErrClosed = errors.New("pool closed")
)

// Handle is a live connection to one (tenant, schema, partition) triple.
// Callers lease it for the duration of each operation so eviction never
// closes a database with work in flight.
type Handle struct {
	key string
	db  *sql.DB

	elem *list.Element // position in the pool's LRU list

	mu      sync.Mutex
	leases  int
	evicted bool
}

// Lease marks the handle in use and returns its database plus a release
// function. The release must be called when the operation completes; if the
// handle was evicted meanwhile, the last release closes it.
func (h *Handle) Lease() (*sql.DB, func()) {
	h.mu.Lock()
	h.leases++
	h.mu.Unlock()

	var once sync.Once
	return h.db, func() {
		once.Do(func() {
			h.mu.Lock()
			h.leases--
			closeNow := h.evicted && h.leases == 0
			h.mu.Unlock()
			if closeNow {
				_ = h.db.Close()
			}
		})
	}
}

// markEvicted detaches the handle from the pool. It closes the database
// immediately when idle, otherwise the last lease release closes it.
func (h *Handle) markEvicted() {
	h.mu.Lock()
	h.evicted = true
	closeNow := h.leases == 0
	h.mu.Unlock()
	if closeNow {
		_ = h.db.Close()
	}
}

// openCall tracks an in-flight open+migrate so concurrent acquirers of the
// same key share one result instead of racing to create the file.
type openCall struct {
	done chan struct{}
	err  error
}

// Pool lazily opens per-tenant SQLite databases, runs their migrations on
// first open, and bounds the number of live handles with LRU eviction.
type Pool struct {
	root   string
	max    int
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	order   *list.List // LRU order, most recently used at the back
	opening map[string]*openCall
	closed  bool
}

// New creates a pool rooted at the given data directory. A non-positive max
// falls back to DefaultMaxHandles.
func New(root string, max int) *Pool {
	if max <= 0 {
		max = DefaultMaxHandles
	}
	return &Pool{
		root:    root,
		max:     max,
		logger:  slog.Default().With("component", "dbpool"),
		handles: make(map[string]*Handle),
		order:   list.New(),
		opening: make(map[string]*openCall),
	}
}

// Root returns the data directory the pool serves.
func (p *Pool) Root() string { return p.root }

// Acquire returns the live handle for (tenant, schema, partition), opening
// and migrating the underlying file on first access. Unless createIfMissing
// is set, a tenant whose default database file does not exist yields
// ErrNotFound. Concurrent acquirers of the same key coalesce into a single
// open, so migrations run at most once per open.
func (p *Pool) Acquire(ctx context.Context, tenant, schema, partition string, createIfMissing bool) (*Handle, error) {
	key := poolKey(tenant, schema, partition)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		if h, ok := p.handles[key]; ok {
			p.order.MoveToBack(h.elem)
			p.mu.Unlock()
			return h, nil
		}
		if call, ok := p.opening[key]; ok {
			p.mu.Unlock()
			select {
			case <-call.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if call.err != nil {
				return nil, call.err
			}
			// Re-check the table: the winner's handle is normally there, but
			// may already have been evicted under capacity pressure.
			continue
		}

		call := &openCall{done: make(chan struct{})}
		p.opening[key] = call
		p.mu.Unlock()

		h, err := p.open(ctx, tenant, schema, partition, createIfMissing)

		p.mu.Lock()
		delete(p.opening, key)
		if err == nil {
			p.insertLocked(key, h)
		}
		p.mu.Unlock()

		call.err = err
		close(call.done)
		return h, err
	}
}

// insertLocked adds a freshly-opened handle, evicting the least-recently-used
// entry first when the pool is at capacity. Must be called with p.mu held.
func (p *Pool) insertLocked(key string, h *Handle) {
	for len(p.handles) >= p.max {
		front := p.order.Front()
		if front == nil {
			break
		}
		victimKey := front.Value.(string)
		victim := p.handles[victimKey]
		p.order.Remove(front)
		delete(p.handles, victimKey)
		victim.markEvicted()
		p.logger.Debug("evicted pooled handle", "key", victimKey)
	}

	h.elem = p.order.PushBack(key)
	p.handles[key] = h
}

// open verifies storage, creates directories as needed, opens the SQLite
// file and applies the schema's migrations.
func (p *Pool) open(ctx context.Context, tenant, schema, partition string, createIfMissing bool) (*Handle, error) {
	// Tenant existence is judged by the default database file, regardless of
	// which schema is being opened.
	defaultFile := DatabaseFile(p.root, tenant, "", "")
	if _, err := os.Stat(defaultFile); err != nil {
		if !createIfMissing {
			return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenant)
		}
	}

	dir := DatabaseDir(p.root, tenant, schema, partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	path := DatabaseFile(p.root, tenant, schema, partition)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Migrations run on every first open; they are idempotent, so a file
	// that is already current passes through untouched.
	if err := migrate(ctx, db, schema, p.logger); err != nil {
		db.Close()
		return nil, err
	}

	p.logger.Debug("opened tenant database", "tenant", tenant, "schema", schema, "partition", partition)
	return &Handle{key: poolKey(tenant, schema, partition), db: db}, nil
}

// Evict removes the handle for (tenant, schema, partition), if present.
// Intended for tests and administrative teardown.
func (p *Pool) Evict(tenant, schema, partition string) bool {
	key := poolKey(tenant, schema, partition)

	p.mu.Lock()
	h, ok := p.handles[key]
	if ok {
		p.order.Remove(h.elem)
		delete(p.handles, key)
	}
	p.mu.Unlock()

	if ok {
		h.markEvicted()
	}
	return ok
}

// Len reports the number of live handles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close evicts every handle and rejects further acquires.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	victims := make([]*Handle, 0, len(p.handles))
	for key, h := range p.handles {
		victims = append(victims, h)
		delete(p.handles, key)
	}
	p.order.Init()
	p.mu.Unlock()

	for _, h := range victims {
		h.markEvicted()
	}
	return nil
}
