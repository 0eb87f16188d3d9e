// ABOUTME: Partitioned audit log repository over a tenant's audit schema
// ABOUTME: One SQLite file per calendar month; the diff payload is encrypted

package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

// PartitionForTime names the monthly audit partition a timestamp falls into.
func PartitionForTime(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// AuditRepository appends to and lists one monthly partition of a tenant's
// audit log.
type AuditRepository struct {
	base
	cipher vault.Cipher
}

// NewAuditRepository binds a repository to one tenant's audit partition,
// e.g. "2026-08".
func NewAuditRepository(pool *dbpool.Pool, tenantID, partition string, cipher vault.Cipher) *AuditRepository {
	return &AuditRepository{
		base:   base{pool: pool, tenant: tenantID, schema: dbpool.SchemaAudit, partition: partition},
		cipher: cipher,
	}
}

// Partition returns the partition this repository writes to.
func (r *AuditRepository) Partition() string { return r.partition }

// Create appends one audit entry and returns it with generated fields filled.
func (r *AuditRepository) Create(ctx context.Context, d dto.AuditDTO) (dto.AuditDTO, error) {
	if d.EventName == "" {
		return dto.AuditDTO{}, fmt.Errorf("%w: missing event name", ErrValidation)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt == "" {
		d.CreatedAt = nowTS()
	}

	diff, err := r.cipher.Encrypt(ctx, d.Diff)
	if err != nil {
		return dto.AuditDTO{}, err
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.AuditDTO{}, err
	}
	defer release()

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit (id, event_name, record_locator, diff, ip, ua, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.EventName, nullString(d.RecordLocator), diff,
		nullString(d.IP), nullString(d.UA), d.CreatedAt)
	if err != nil {
		return dto.AuditDTO{}, fmt.Errorf("inserting audit entry: %w", err)
	}

	return d, nil
}

// QueryAll returns one page of this partition's entries, newest first, plus
// the total count. The only supported filter is eventName.
func (r *AuditRepository) QueryAll(ctx context.Context, q PageQuery) (dto.Page[dto.AuditDTO], error) {
	page := dto.Page[dto.AuditDTO]{
		Rows:    []dto.AuditDTO{},
		Limit:   q.limit(),
		Offset:  q.Offset,
		OrderBy: "createdAt",
		Query:   q.Query,
	}

	where := "WHERE 1=1"
	args := []any{}
	if eventName := q.Filter["eventName"]; eventName != "" {
		where += " AND event_name = ?"
		args = append(args, eventName)
	}
	if recordLocator := q.Filter["recordLocator"]; recordLocator != "" {
		where += " AND record_locator = ?"
		args = append(args, recordLocator)
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return page, err
	}
	defer release()

	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit `+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("counting audit entries: %w", err)
	}

	pageArgs := append(append([]any{}, args...), page.Limit, page.Offset)
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_name, record_locator, diff, ip, ua, created_at
		FROM audit `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return page, fmt.Errorf("querying audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var d dto.AuditDTO
		var recordLocator, diff, ip, ua *string
		if err := rows.Scan(&d.ID, &d.EventName, &recordLocator, &diff, &ip, &ua, &d.CreatedAt); err != nil {
			return page, fmt.Errorf("scanning audit row: %w", err)
		}
		if recordLocator != nil {
			d.RecordLocator = *recordLocator
		}
		if ip != nil {
			d.IP = *ip
		}
		if ua != nil {
			d.UA = *ua
		}
		if diff != nil {
			if d.Diff, err = decryptField(ctx, r.cipher, *diff); err != nil {
				return page, err
			}
		}
		page.Rows = append(page.Rows, d)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterating audit rows: %w", err)
	}
	return page, nil
}
