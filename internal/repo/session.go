// ABOUTME: Chat session repository over a tenant's default schema
// ABOUTME: End-user identity fields are encrypted; the transcript stays JSON

package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

var sessionSortColumns = map[string]string{
	"createdAt": "created_at DESC",
	"updatedAt": "updated_at DESC",
}

const sessionColumns = `
	id, agent_id, user_name, user_email, accepted_terms, messages,
	finalized_at, created_at, updated_at`

// SessionRepository persists chat sessions for one tenant.
type SessionRepository struct {
	base
	cipher vault.Cipher
}

// NewSessionRepository binds a repository to one tenant's default schema.
func NewSessionRepository(pool *dbpool.Pool, tenantID string, cipher vault.Cipher) *SessionRepository {
	return &SessionRepository{
		base:   base{pool: pool, tenant: tenantID, schema: dbpool.SchemaDefault},
		cipher: cipher,
	}
}

func (r *SessionRepository) scanSession(ctx context.Context, s rowScanner) (dto.SessionDTO, error) {
	var d dto.SessionDTO
	var userName, userEmail, messages, finalizedAt sql.NullString
	var acceptedTerms int

	err := s.Scan(&d.ID, &d.AgentID, &userName, &userEmail, &acceptedTerms,
		&messages, &finalizedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}

	if d.UserName, err = decryptField(ctx, r.cipher, userName.String); err != nil {
		return d, err
	}
	if d.UserEmail, err = decryptField(ctx, r.cipher, userEmail.String); err != nil {
		return d, err
	}
	d.AcceptedTerms = acceptedTerms != 0
	d.Messages = messages.String
	d.FinalizedAt = finalizedAt.String
	return d, nil
}

// Create inserts a session and returns the freshly-read-back DTO.
func (r *SessionRepository) Create(ctx context.Context, d dto.SessionDTO) (dto.SessionDTO, error) {
	if d.AgentID == "" {
		return dto.SessionDTO{}, fmt.Errorf("%w: missing agent id", ErrValidation)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := nowTS()
	if d.CreatedAt == "" {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	userName, err := r.cipher.Encrypt(ctx, d.UserName)
	if err != nil {
		return dto.SessionDTO{}, err
	}
	userEmail, err := r.cipher.Encrypt(ctx, d.UserEmail)
	if err != nil {
		return dto.SessionDTO{}, err
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.SessionDTO{}, err
	}
	defer release()

	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.AgentID, userName, userEmail, boolToInt(d.AcceptedTerms),
		nullString(d.Messages), nullString(d.FinalizedAt), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return dto.SessionDTO{}, fmt.Errorf("inserting session: %w", err)
	}

	return r.getByID(ctx, db, d.ID)
}

func (r *SessionRepository) getByID(ctx context.Context, db *sql.DB, id string) (dto.SessionDTO, error) {
	d, err := r.scanSession(ctx, db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return dto.SessionDTO{}, ErrNotFound
	}
	if err != nil {
		return dto.SessionDTO{}, fmt.Errorf("querying session: %w", err)
	}
	return d, nil
}

// Upsert updates the session identified by query["id"], creating it when
// absent; updatedAt is restamped on update.
func (r *SessionRepository) Upsert(ctx context.Context, query map[string]string, d dto.SessionDTO) (dto.SessionDTO, error) {
	id := query["id"]
	if id == "" {
		return dto.SessionDTO{}, fmt.Errorf("%w: missing session id", ErrValidation)
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.SessionDTO{}, err
	}
	defer release()

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		d.ID = id
		return r.Create(ctx, d)
	}
	if err != nil {
		return dto.SessionDTO{}, fmt.Errorf("checking session: %w", err)
	}

	userName, err := r.cipher.Encrypt(ctx, d.UserName)
	if err != nil {
		return dto.SessionDTO{}, err
	}
	userEmail, err := r.cipher.Encrypt(ctx, d.UserEmail)
	if err != nil {
		return dto.SessionDTO{}, err
	}

	_, err = db.ExecContext(ctx, `
		UPDATE sessions SET
			agent_id = ?, user_name = ?, user_email = ?, accepted_terms = ?,
			messages = ?, finalized_at = ?, updated_at = ?
		WHERE id = ?
	`,
		d.AgentID, userName, userEmail, boolToInt(d.AcceptedTerms),
		nullString(d.Messages), nullString(d.FinalizedAt), nowTS(), id,
	)
	if err != nil {
		return dto.SessionDTO{}, fmt.Errorf("updating session: %w", err)
	}

	return r.getByID(ctx, db, id)
}

// Delete removes a session; false when nothing matched.
func (r *SessionRepository) Delete(ctx context.Context, query map[string]string) (bool, error) {
	id := query["id"]
	if id == "" {
		return false, nil
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	result, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindAll lists sessions, optionally filtered by id or agentId.
func (r *SessionRepository) FindAll(ctx context.Context, filter map[string]string) ([]dto.SessionDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	args := []any{}
	if id := filter["id"]; id != "" {
		query += " AND id = ?"
		args = append(args, id)
	}
	if agentID := filter["agentId"]; agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []dto.SessionDTO
	for rows.Next() {
		d, err := r.scanSession(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// QueryAll returns one sorted, filtered page of sessions plus the total
// count. Search matches id and agent_id substrings.
func (r *SessionRepository) QueryAll(ctx context.Context, q PageQuery) (dto.Page[dto.SessionDTO], error) {
	page := dto.Page[dto.SessionDTO]{
		Rows:    []dto.SessionDTO{},
		Limit:   q.limit(),
		Offset:  q.Offset,
		OrderBy: q.OrderBy,
		Query:   q.Query,
	}

	orderClause, ok := sessionSortColumns[q.OrderBy]
	if !ok {
		orderClause = sessionSortColumns["createdAt"]
	}

	where := "WHERE 1=1"
	args := []any{}
	if agentID := q.Filter["agentId"]; agentID != "" {
		where += " AND agent_id = ?"
		args = append(args, agentID)
	}
	if q.Query != "" {
		where += " AND (LOWER(id) LIKE ? OR LOWER(agent_id) LIKE ?)"
		pattern := "%" + strings.ToLower(q.Query) + "%"
		args = append(args, pattern, pattern)
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return page, err
	}
	defer release()

	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions `+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("counting sessions: %w", err)
	}

	pageArgs := append(append([]any{}, args...), page.Limit, page.Offset)
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions `+where+` ORDER BY `+orderClause+` LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return page, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		d, err := r.scanSession(ctx, rows)
		if err != nil {
			return page, fmt.Errorf("scanning session row: %w", err)
		}
		page.Rows = append(page.Rows, d)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterating session rows: %w", err)
	}
	return page, nil
}
