// ABOUTME: Shared repository plumbing: error taxonomy, query types, leases
// ABOUTME: Every domain repository maps DTOs to encrypted rows through this base

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a DTO fails a domain invariant, such as
	// a missing identifier on update.
	ErrValidation = errors.New("validation failed")
)

// PageQuery describes one page of a filtered, sorted listing. Filter keys are
// exact-match column filters from a constrained set; Query is a free-text
// substring search ANDed with the filters.
type PageQuery struct {
	Filter  map[string]string
	Limit   int
	Offset  int
	OrderBy string
	Query   string
}

// DefaultPageLimit applies when a PageQuery carries no explicit limit.
const DefaultPageLimit = 100

func (q PageQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultPageLimit
	}
	return q.Limit
}

// ParseOrDefault decodes stored JSON, substituting the caller's fallback when
// the raw value is empty or unparsable. Legacy and partially-written rows
// degrade to a safe default instead of failing the read.
func ParseOrDefault[T any](raw string, fallback T) T {
	if raw == "" || raw == "null" {
		return fallback
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fallback
	}
	return v
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// base ties a repository to one (tenant, schema, partition) triple. The
// handle is acquired lazily per operation so repositories stay cheap to
// construct and the pool governs lifecycle.
type base struct {
	pool      *dbpool.Pool
	tenant    string
	schema    string
	partition string
}

// lease acquires the pooled handle and returns its database plus a release
// function that must be called when the operation completes.
func (b *base) lease(ctx context.Context) (*sql.DB, func(), error) {
	h, err := b.pool.Acquire(ctx, b.tenant, b.schema, b.partition, false)
	if err != nil {
		return nil, nil, err
	}
	db, release := h.Lease()
	return db, release, nil
}

// nowTS is the canonical timestamp format for DTOs and rows. RFC 3339 in UTC
// sorts lexicographically, which the default createdAt ordering relies on.
func nowTS() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// decryptField unseals one stored field. Empty stored values (legacy NULL
// columns) pass through as empty rather than failing authentication.
func decryptField(ctx context.Context, c vault.Cipher, stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	return c.Decrypt(ctx, stored)
}
