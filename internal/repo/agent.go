// ABOUTME: Agent definition repository over a tenant's default schema
// ABOUTME: Agent metadata is not sensitive; options JSON degrades to defaults

package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
)

const agentColumns = `
	id, display_name, prompt, welcome_info, expected_result, safety_rules,
	published, options, icon, created_at, updated_at`

// AgentRepository persists agent definitions for one tenant.
type AgentRepository struct {
	base
}

// NewAgentRepository binds a repository to one tenant's default schema.
func NewAgentRepository(pool *dbpool.Pool, tenantID string) *AgentRepository {
	return &AgentRepository{base{pool: pool, tenant: tenantID, schema: dbpool.SchemaDefault}}
}

func scanAgentRow(s rowScanner) (dto.AgentDTO, error) {
	var d dto.AgentDTO
	var prompt, welcomeInfo, expectedResult, safetyRules, options, icon sql.NullString
	var published int

	err := s.Scan(&d.ID, &d.DisplayName, &prompt, &welcomeInfo, &expectedResult,
		&safetyRules, &published, &options, &icon, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}

	d.Prompt = prompt.String
	d.WelcomeInfo = welcomeInfo.String
	d.ExpectedResult = expectedResult.String
	d.SafetyRules = safetyRules.String
	d.Published = published != 0
	d.Options = ParseOrDefault(options.String, map[string]any{})
	d.Icon = icon.String
	return d, nil
}

// Create inserts a new agent definition and returns the freshly-read-back DTO.
func (r *AgentRepository) Create(ctx context.Context, d dto.AgentDTO) (dto.AgentDTO, error) {
	if d.DisplayName == "" {
		return dto.AgentDTO{}, fmt.Errorf("%w: missing display name", ErrValidation)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := nowTS()
	if d.CreatedAt == "" {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.AgentDTO{}, err
	}
	defer release()

	_, err = db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.DisplayName, nullString(d.Prompt), nullString(d.WelcomeInfo),
		nullString(d.ExpectedResult), nullString(d.SafetyRules),
		boolToInt(d.Published), plainJSON(orDefault(d.Options)), nullString(d.Icon),
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return dto.AgentDTO{}, fmt.Errorf("inserting agent: %w", err)
	}

	return r.getByID(ctx, db, d.ID)
}

func (r *AgentRepository) getByID(ctx context.Context, db *sql.DB, id string) (dto.AgentDTO, error) {
	d, err := scanAgentRow(db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return dto.AgentDTO{}, ErrNotFound
	}
	if err != nil {
		return dto.AgentDTO{}, fmt.Errorf("querying agent: %w", err)
	}
	return d, nil
}

// Get returns one agent by identifier.
func (r *AgentRepository) Get(ctx context.Context, id string) (dto.AgentDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.AgentDTO{}, err
	}
	defer release()
	return r.getByID(ctx, db, id)
}

// Upsert updates the agent identified by query["id"], creating it when absent.
func (r *AgentRepository) Upsert(ctx context.Context, query map[string]string, d dto.AgentDTO) (dto.AgentDTO, error) {
	id := query["id"]
	if id == "" {
		return dto.AgentDTO{}, fmt.Errorf("%w: missing agent id", ErrValidation)
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.AgentDTO{}, err
	}
	defer release()

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		d.ID = id
		return r.Create(ctx, d)
	}
	if err != nil {
		return dto.AgentDTO{}, fmt.Errorf("checking agent: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE agents SET
			display_name = ?, prompt = ?, welcome_info = ?, expected_result = ?,
			safety_rules = ?, published = ?, options = ?, icon = ?, updated_at = ?
		WHERE id = ?
	`,
		d.DisplayName, nullString(d.Prompt), nullString(d.WelcomeInfo),
		nullString(d.ExpectedResult), nullString(d.SafetyRules),
		boolToInt(d.Published), plainJSON(orDefault(d.Options)), nullString(d.Icon),
		nowTS(), id,
	)
	if err != nil {
		return dto.AgentDTO{}, fmt.Errorf("updating agent: %w", err)
	}

	return r.getByID(ctx, db, id)
}

// Delete removes an agent; false when nothing matched.
func (r *AgentRepository) Delete(ctx context.Context, query map[string]string) (bool, error) {
	id := query["id"]
	if id == "" {
		return false, nil
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	result, err := db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting agent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindAll lists agents, optionally filtered by id or published flag.
func (r *AgentRepository) FindAll(ctx context.Context, filter map[string]string) ([]dto.AgentDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`
	args := []any{}
	if id := filter["id"]; id != "" {
		query += " AND id = ?"
		args = append(args, id)
	}
	if published := filter["published"]; published != "" {
		query += " AND published = ?"
		args = append(args, boolToInt(published == "true"))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []dto.AgentDTO
	for rows.Next() {
		d, err := scanAgentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orDefault(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
