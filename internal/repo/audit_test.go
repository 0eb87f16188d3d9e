package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

func TestPartitionForTime(t *testing.T) {
	assert.Equal(t, "2026-08",
		PartitionForTime(time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)))

	// Partitions are derived from UTC, not the local wall clock.
	late := time.Date(2026, 8, 31, 23, 30, 0, 0, time.FixedZone("W", -2*3600))
	assert.Equal(t, "2026-09", PartitionForTime(late))
}

func TestAuditRepository_CreateAndQuery(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewAuditRepository(pool, tenantID, "2026-08", testCipher(t, "storage-key"))
	ctx := context.Background()

	created, err := repo.Create(ctx, dto.AuditDTO{
		EventName:     "updateOrder",
		RecordLocator: `{"id":"order-1"}`,
		Diff:          `{"status":["new","shipped"]}`,
		IP:            "203.0.113.7",
		UA:            "curl/8.0",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.CreatedAt)

	page, err := repo.QueryAll(ctx, PageQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, `{"status":["new","shipped"]}`, page.Rows[0].Diff)
	assert.Equal(t, "203.0.113.7", page.Rows[0].IP)
}

func TestAuditRepository_CreateRequiresEventName(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewAuditRepository(pool, tenantID, "2026-08", vault.Passthrough{})

	_, err := repo.Create(context.Background(), dto.AuditDTO{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuditRepository_PartitionsAreSeparateFiles(t *testing.T) {
	pool, tenantID := setupTenant(t)

	_, err := NewAuditRepository(pool, tenantID, "2026-07", vault.Passthrough{}).
		Create(context.Background(), dto.AuditDTO{EventName: "july"})
	require.NoError(t, err)
	_, err = NewAuditRepository(pool, tenantID, "2026-08", vault.Passthrough{}).
		Create(context.Background(), dto.AuditDTO{EventName: "august"})
	require.NoError(t, err)

	partDir := filepath.Join(pool.Root(), tenantID, "audit-partitions")
	for _, name := range []string{"db-audit-2026-07.sqlite", "db-audit-2026-08.sqlite"} {
		_, err := os.Stat(filepath.Join(partDir, name))
		assert.NoError(t, err, name)
	}

	july, err := NewAuditRepository(pool, tenantID, "2026-07", vault.Passthrough{}).
		QueryAll(context.Background(), PageQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, july.Total)
	assert.Equal(t, "july", july.Rows[0].EventName)
}

func TestAuditRepository_QueryAllFiltersAndPages(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewAuditRepository(pool, tenantID, "2026-08", vault.Passthrough{})
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := "createOrder"
		if i%2 == 1 {
			event = "deleteOrder"
		}
		_, err := repo.Create(ctx, dto.AuditDTO{
			EventName: event,
			CreatedAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			Diff:      fmt.Sprintf(`{"seq":%d}`, i),
		})
		require.NoError(t, err)
	}

	page, err := repo.QueryAll(ctx, PageQuery{
		Filter: map[string]string{"eventName": "createOrder"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	// Newest first, window of two.
	page, err = repo.QueryAll(ctx, PageQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, `{"seq":4}`, page.Rows[0].Diff)
	assert.Equal(t, `{"seq":3}`, page.Rows[1].Diff)
}
