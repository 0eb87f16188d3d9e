package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/tenant"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

// setupTenant provisions a pool and one tenant for repository tests.
func setupTenant(t *testing.T) (*dbpool.Pool, string) {
	t.Helper()
	pool := dbpool.New(t.TempDir(), 10)
	t.Cleanup(func() { _ = pool.Close() })

	id := tenant.HashEmail("owner@example.com")
	_, err := tenant.Create(context.Background(), pool, id, tenant.Creator{})
	require.NoError(t, err)
	return pool, id
}

func testCipher(t *testing.T, storageKey string) vault.Cipher {
	t.Helper()
	c, err := vault.NewKeyCipher(storageKey)
	require.NoError(t, err)
	return c
}

func TestParseOrDefault(t *testing.T) {
	assert.Equal(t, map[string]any{"a": "b"},
		ParseOrDefault(`{"a":"b"}`, map[string]any{}))

	// Empty, null and malformed input all degrade to the fallback.
	assert.Equal(t, map[string]any{}, ParseOrDefault("", map[string]any{}))
	assert.Equal(t, map[string]any{}, ParseOrDefault("null", map[string]any{}))
	assert.Equal(t, []dto.OrderNoteDTO{}, ParseOrDefault("{{not json", []dto.OrderNoteDTO{}))

	fallback := dto.PriceDTO{Value: 1, Currency: "USD"}
	assert.Equal(t, fallback, ParseOrDefault("12,5", fallback))
	assert.Equal(t, dto.PriceDTO{Value: 3, Currency: "EUR"},
		ParseOrDefault(`{"value":3,"currency":"EUR"}`, fallback))
}

func TestPageQuery_LimitDefaults(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, PageQuery{}.limit())
	assert.Equal(t, 10, PageQuery{Limit: 10}.limit())
}
