package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

func testOrder(id string) dto.OrderDTO {
	return dto.OrderDTO{
		ID:      id,
		AgentID: "agent-1",
		Email:   "buyer@example.com",
		Status:  "new",
		BillingAddress: dto.AddressDTO{
			Address1: "1 Main St", City: "Springfield", Country: "US",
		},
		Customer: dto.CustomerDTO{Name: "Jane Buyer", Email: "buyer@example.com"},
		Items: []dto.OrderItemDTO{
			{ID: "i1", Name: "Widget", Quantity: 2, TaxRate: 0.23,
				Price: dto.PriceDTO{Value: 100, Currency: "USD"}},
		},
		ShippingPrice:        dto.PriceDTO{Value: 10, Currency: "USD"},
		ShippingPriceTaxRate: 0.23,
	}
}

func TestOrderRepository_CreateRecomputesForgedTotal(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, testCipher(t, "storage-key"))
	ctx := context.Background()

	order := testOrder("order-1")
	order.Total = dto.PriceDTO{Value: 0.01, Currency: "USD"} // forged

	created, err := repo.Create(ctx, order)
	require.NoError(t, err)

	assert.InDelta(t, 210.0, created.Total.Value, 1e-9, "total must be recomputed from items")
	assert.InDelta(t, 200.0, created.Subtotal.Value, 1e-9)
	assert.NotEmpty(t, created.CreatedAt)
	assert.Equal(t, "buyer@example.com", created.Email)
	assert.Equal(t, "Springfield", created.BillingAddress.City)
}

func TestOrderRepository_SensitiveFieldsStoredEncrypted(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, testCipher(t, "storage-key"))
	ctx := context.Background()

	_, err := repo.Create(ctx, testOrder("order-1"))
	require.NoError(t, err)

	// Read the raw row: encrypted columns must not contain the plaintext.
	h, err := pool.Acquire(ctx, tenantID, dbpool.SchemaCommerce, "", false)
	require.NoError(t, err)
	db, release := h.Lease()
	defer release()

	var email, billing, items string
	require.NoError(t, db.QueryRow(
		`SELECT email, billing_address, items FROM orders WHERE id = ?`, "order-1",
	).Scan(&email, &billing, &items))

	assert.NotContains(t, email, "buyer@example.com")
	assert.NotContains(t, billing, "Springfield")
	assert.Contains(t, items, "Widget", "non-sensitive items stay plain JSON")
}

func TestOrderRepository_WrongTenantKeyFailsDecryption(t *testing.T) {
	pool, tenantID := setupTenant(t)
	ctx := context.Background()

	writer := NewOrderRepository(pool, tenantID, testCipher(t, "tenant-one-key"))
	_, err := writer.Create(ctx, testOrder("order-1"))
	require.NoError(t, err)

	reader := NewOrderRepository(pool, tenantID, testCipher(t, "tenant-two-key"))
	_, err = reader.FindAll(ctx, map[string]string{"id": "order-1"})
	assert.ErrorIs(t, err, vault.ErrDecrypt)
}

func TestOrderRepository_PassthroughCipher(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, vault.Passthrough{})
	ctx := context.Background()

	created, err := repo.Create(ctx, testOrder("order-1"))
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", created.Email)

	orders, err := repo.FindAll(ctx, map[string]string{"id": "order-1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Springfield", orders[0].BillingAddress.City)
}

func TestOrderRepository_UpsertCreatesThenUpdates(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, testCipher(t, "storage-key"))
	ctx := context.Background()

	// Missing row: upsert delegates to create.
	created, err := repo.Upsert(ctx, map[string]string{"id": "order-1"}, testOrder(""))
	require.NoError(t, err)
	assert.Equal(t, "order-1", created.ID)
	assert.InDelta(t, 210.0, created.Total.Value, 1e-9)

	// Existing row: totals recomputed again, updatedAt restamped.
	time.Sleep(1100 * time.Millisecond)
	changed := testOrder("order-1")
	changed.Items[0].Quantity = 3
	changed.Total = dto.PriceDTO{Value: 5, Currency: "USD"} // forged again

	updated, err := repo.Upsert(ctx, map[string]string{"id": "order-1"}, changed)
	require.NoError(t, err)
	assert.InDelta(t, 310.0, updated.Total.Value, 1e-9)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.NotEqual(t, created.UpdatedAt, updated.UpdatedAt)
}

func TestOrderRepository_UpsertRequiresID(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, vault.Passthrough{})

	_, err := repo.Upsert(context.Background(), map[string]string{}, testOrder(""))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOrderRepository_Delete(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, vault.Passthrough{})
	ctx := context.Background()

	_, err := repo.Create(ctx, testOrder("order-1"))
	require.NoError(t, err)

	// Deleting a missing identifier is not an error.
	removed, err := repo.Delete(ctx, map[string]string{"id": "no-such-order"})
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = repo.Delete(ctx, map[string]string{"id": "order-1"})
	require.NoError(t, err)
	assert.True(t, removed)

	orders, err := repo.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderRepository_QueryAllPagination(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, vault.Passthrough{})
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		order := testOrder(fmt.Sprintf("order-%02d", i))
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		_, err := repo.Create(ctx, order)
		require.NoError(t, err)
	}

	page, err := repo.QueryAll(ctx, PageQuery{
		Filter: map[string]string{"agentId": "agent-1"},
		Limit:  10,
		Offset: 10,
	})
	require.NoError(t, err)

	assert.Len(t, page.Rows, 10)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 10, page.Offset)

	// Default order is creation time descending; offset 10 starts at order-14.
	assert.Equal(t, "order-14", page.Rows[0].ID)
	assert.Equal(t, "order-05", page.Rows[9].ID)
}

func TestOrderRepository_QueryAllSearch(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, vault.Passthrough{})
	ctx := context.Background()

	shipped := testOrder("order-shipped")
	shipped.Status = "shipped"
	_, err := repo.Create(ctx, shipped)
	require.NoError(t, err)
	_, err = repo.Create(ctx, testOrder("order-new"))
	require.NoError(t, err)

	page, err := repo.QueryAll(ctx, PageQuery{Query: "SHIPPED"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "order-shipped", page.Rows[0].ID)

	// Search is ANDed with equality filters.
	page, err = repo.QueryAll(ctx, PageQuery{
		Filter: map[string]string{"status": "new"},
		Query:  "shipped",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestOrderRepository_MalformedStoredJSONDefaults(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewOrderRepository(pool, tenantID, vault.Passthrough{})
	ctx := context.Background()

	_, err := repo.Create(ctx, testOrder("order-1"))
	require.NoError(t, err)

	// Corrupt the notes column in place to simulate a legacy row.
	h, err := pool.Acquire(ctx, tenantID, dbpool.SchemaCommerce, "", false)
	require.NoError(t, err)
	db, release := h.Lease()
	_, err = db.Exec(`UPDATE orders SET notes = 'not-json-at-all' WHERE id = ?`, "order-1")
	release()
	require.NoError(t, err)

	orders, err := repo.FindAll(ctx, map[string]string{"id": "order-1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, []dto.OrderNoteDTO{}, orders[0].Notes, "malformed notes degrade to an empty list")
}

func TestOrderRepository_MissingTenant(t *testing.T) {
	pool := dbpool.New(t.TempDir(), 10)
	t.Cleanup(func() { _ = pool.Close() })

	repo := NewOrderRepository(pool, "unprovisioned", vault.Passthrough{})
	_, err := repo.FindAll(context.Background(), nil)
	assert.ErrorIs(t, err, dbpool.ErrNotFound)
}
