// ABOUTME: Session result repository over a tenant's default schema
// ABOUTME: Result content and end-user identity are stored encrypted

package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

const resultColumns = `
	session_id, agent_id, user_name, user_email, content, format,
	created_at, updated_at`

// ResultRepository persists finalized session results, keyed by session.
type ResultRepository struct {
	base
	cipher vault.Cipher
}

// NewResultRepository binds a repository to one tenant's default schema.
func NewResultRepository(pool *dbpool.Pool, tenantID string, cipher vault.Cipher) *ResultRepository {
	return &ResultRepository{
		base:   base{pool: pool, tenant: tenantID, schema: dbpool.SchemaDefault},
		cipher: cipher,
	}
}

func (r *ResultRepository) scanResult(ctx context.Context, s rowScanner) (dto.ResultDTO, error) {
	var d dto.ResultDTO
	var userName, userEmail, content, format sql.NullString

	err := s.Scan(&d.SessionID, &d.AgentID, &userName, &userEmail, &content,
		&format, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}

	if d.UserName, err = decryptField(ctx, r.cipher, userName.String); err != nil {
		return d, err
	}
	if d.UserEmail, err = decryptField(ctx, r.cipher, userEmail.String); err != nil {
		return d, err
	}
	if d.Content, err = decryptField(ctx, r.cipher, content.String); err != nil {
		return d, err
	}
	d.Format = format.String
	return d, nil
}

// Upsert writes the result for query["sessionId"], inserting on first write
// and updating thereafter.
func (r *ResultRepository) Upsert(ctx context.Context, query map[string]string, d dto.ResultDTO) (dto.ResultDTO, error) {
	sessionID := query["sessionId"]
	if sessionID == "" {
		return dto.ResultDTO{}, fmt.Errorf("%w: missing session id", ErrValidation)
	}
	d.SessionID = sessionID

	userName, err := r.cipher.Encrypt(ctx, d.UserName)
	if err != nil {
		return dto.ResultDTO{}, err
	}
	userEmail, err := r.cipher.Encrypt(ctx, d.UserEmail)
	if err != nil {
		return dto.ResultDTO{}, err
	}
	content, err := r.cipher.Encrypt(ctx, d.Content)
	if err != nil {
		return dto.ResultDTO{}, err
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.ResultDTO{}, err
	}
	defer release()

	now := nowTS()
	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM results WHERE session_id = ?`, sessionID).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		createdAt := d.CreatedAt
		if createdAt == "" {
			createdAt = now
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO results (`+resultColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, d.AgentID, userName, userEmail, content,
			nullString(d.Format), createdAt, now)
		if err != nil {
			return dto.ResultDTO{}, fmt.Errorf("inserting result: %w", err)
		}
	case err != nil:
		return dto.ResultDTO{}, fmt.Errorf("checking result: %w", err)
	default:
		_, err = db.ExecContext(ctx, `
			UPDATE results SET
				agent_id = ?, user_name = ?, user_email = ?, content = ?,
				format = ?, updated_at = ?
			WHERE session_id = ?
		`, d.AgentID, userName, userEmail, content, nullString(d.Format), now, sessionID)
		if err != nil {
			return dto.ResultDTO{}, fmt.Errorf("updating result: %w", err)
		}
	}

	return r.getBySessionID(ctx, db, sessionID)
}

func (r *ResultRepository) getBySessionID(ctx context.Context, db *sql.DB, sessionID string) (dto.ResultDTO, error) {
	d, err := r.scanResult(ctx, db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE session_id = ?`, sessionID))
	if err == sql.ErrNoRows {
		return dto.ResultDTO{}, ErrNotFound
	}
	if err != nil {
		return dto.ResultDTO{}, fmt.Errorf("querying result: %w", err)
	}
	return d, nil
}

// Get returns the result for one session.
func (r *ResultRepository) Get(ctx context.Context, sessionID string) (dto.ResultDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.ResultDTO{}, err
	}
	defer release()
	return r.getBySessionID(ctx, db, sessionID)
}

// Delete removes the result for query["sessionId"]; false when absent.
func (r *ResultRepository) Delete(ctx context.Context, query map[string]string) (bool, error) {
	sessionID := query["sessionId"]
	if sessionID == "" {
		return false, nil
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	result, err := db.ExecContext(ctx, `DELETE FROM results WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("deleting result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindAll lists results, optionally filtered by sessionId or agentId.
func (r *ResultRepository) FindAll(ctx context.Context, filter map[string]string) ([]dto.ResultDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + resultColumns + ` FROM results WHERE 1=1`
	args := []any{}
	if sessionID := filter["sessionId"]; sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	if agentID := filter["agentId"]; agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []dto.ResultDTO
	for rows.Next() {
		d, err := r.scanResult(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return results, nil
}
