// ABOUTME: Token-usage statistics repository with monthly aggregation
// ABOUTME: Events fold into one row per (event, month, year) for quota checks

package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
)

// UsageTotals is the aggregated consumption for one calendar month.
type UsageTotals struct {
	Month            int   `json:"month"`
	Year             int   `json:"year"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	RequestCount     int64 `json:"requestCount"`
}

// StatsRepository aggregates token usage per tenant in the default schema.
type StatsRepository struct {
	base
}

// NewStatsRepository binds a repository to one tenant's default schema.
func NewStatsRepository(pool *dbpool.Pool, tenantID string) *StatsRepository {
	return &StatsRepository{base{pool: pool, tenant: tenantID, schema: dbpool.SchemaDefault}}
}

// Aggregate folds one usage event into its monthly row, adding token counts
// and bumping the event counter.
func (r *StatsRepository) Aggregate(ctx context.Context, d dto.StatDTO) (dto.StatDTO, error) {
	if d.EventName == "" {
		return dto.StatDTO{}, fmt.Errorf("%w: missing event name", ErrValidation)
	}

	now := time.Now().UTC()
	if d.CreatedYear == 0 {
		d.CreatedYear = now.Year()
	}
	if d.CreatedMonth == 0 {
		d.CreatedMonth = int(now.Month())
	}
	if d.CreatedDay == 0 {
		d.CreatedDay = now.Day()
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.StatDTO{}, err
	}
	defer release()

	_, err = db.ExecContext(ctx, `
		INSERT INTO stats (id, event_name, prompt_tokens, completion_tokens,
			created_month, created_day, created_year, counter, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(event_name, created_month, created_year) DO UPDATE SET
			prompt_tokens = prompt_tokens + excluded.prompt_tokens,
			completion_tokens = completion_tokens + excluded.completion_tokens,
			counter = counter + 1,
			created_day = excluded.created_day
	`,
		uuid.New().String(), d.EventName, d.PromptTokens, d.CompletionTokens,
		d.CreatedMonth, d.CreatedDay, d.CreatedYear, nowTS(),
	)
	if err != nil {
		return dto.StatDTO{}, fmt.Errorf("aggregating stats: %w", err)
	}

	var out dto.StatDTO
	err = db.QueryRowContext(ctx, `
		SELECT id, event_name, prompt_tokens, completion_tokens,
			created_month, created_day, created_year, counter, created_at
		FROM stats
		WHERE event_name = ? AND created_month = ? AND created_year = ?
	`, d.EventName, d.CreatedMonth, d.CreatedYear).Scan(
		&out.ID, &out.EventName, &out.PromptTokens, &out.CompletionTokens,
		&out.CreatedMonth, &out.CreatedDay, &out.CreatedYear, &out.Counter, &out.CreatedAt,
	)
	if err != nil {
		return dto.StatDTO{}, fmt.Errorf("querying aggregated stats: %w", err)
	}
	return out, nil
}

// MonthTotals returns the summed usage for one calendar month across events.
func (r *StatsRepository) MonthTotals(ctx context.Context, month, year int) (*UsageTotals, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	totals := &UsageTotals{Month: month, Year: year}
	err = db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(counter), 0)
		FROM stats
		WHERE created_month = ? AND created_year = ?
	`, month, year).Scan(&totals.PromptTokens, &totals.CompletionTokens, &totals.RequestCount)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}
	return totals, nil
}

// FindAll lists aggregated rows, optionally filtered by eventName.
func (r *StatsRepository) FindAll(ctx context.Context, filter map[string]string) ([]dto.StatDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		SELECT id, event_name, prompt_tokens, completion_tokens,
			created_month, created_day, created_year, counter, created_at
		FROM stats WHERE 1=1`
	args := []any{}
	if eventName := filter["eventName"]; eventName != "" {
		query += " AND event_name = ?"
		args = append(args, eventName)
	}
	query += " ORDER BY created_year DESC, created_month DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []dto.StatDTO
	for rows.Next() {
		var d dto.StatDTO
		if err := rows.Scan(&d.ID, &d.EventName, &d.PromptTokens, &d.CompletionTokens,
			&d.CreatedMonth, &d.CreatedDay, &d.CreatedYear, &d.Counter, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		stats = append(stats, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats rows: %w", err)
	}
	return stats, nil
}
