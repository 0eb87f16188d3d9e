package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdoodle/doodle-server/internal/dto"
)

func testKey(locator string) dto.KeyDTO {
	return dto.KeyDTO{
		KeyLocatorHash:     locator,
		KeyHash:            "hash-" + locator,
		DatabaseIDHash:     "tenant-hash",
		EncryptedMasterKey: "wrapped-master-key",
		ACL:                `{"role":"guest"}`,
	}
}

func TestKeyRepository_UpsertAndGet(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewKeyRepository(pool, tenantID)
	ctx := context.Background()

	created, err := repo.Upsert(ctx, nil, testKey("locator-1"))
	require.NoError(t, err)
	assert.Equal(t, "wrapped-master-key", created.EncryptedMasterKey)
	assert.NotEmpty(t, created.UpdatedAt)

	rotated := testKey("locator-1")
	rotated.EncryptedMasterKey = "rotated-master-key"
	updated, err := repo.Upsert(ctx, map[string]string{"keyLocatorHash": "locator-1"}, rotated)
	require.NoError(t, err)
	assert.Equal(t, "rotated-master-key", updated.EncryptedMasterKey)

	got, err := repo.Get(ctx, "locator-1")
	require.NoError(t, err)
	assert.Equal(t, "rotated-master-key", got.EncryptedMasterKey)

	all, err := repo.FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not duplicate the locator row")
}

func TestKeyRepository_UpsertValidation(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewKeyRepository(pool, tenantID)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, nil, dto.KeyDTO{KeyHash: "h"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = repo.Upsert(ctx, nil, dto.KeyDTO{KeyLocatorHash: "locator-1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestKeyRepository_GetMissing(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewKeyRepository(pool, tenantID)

	_, err := repo.Get(context.Background(), "no-such-locator")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyRepository_FindAllByDatabase(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewKeyRepository(pool, tenantID)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, nil, testKey("locator-1"))
	require.NoError(t, err)

	other := testKey("locator-2")
	other.DatabaseIDHash = "other-hash"
	_, err = repo.Upsert(ctx, nil, other)
	require.NoError(t, err)

	keys, err := repo.FindAll(ctx, map[string]string{"databaseIdHash": "tenant-hash"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "locator-1", keys[0].KeyLocatorHash)
}

func TestKeyRepository_Delete(t *testing.T) {
	pool, tenantID := setupTenant(t)
	repo := NewKeyRepository(pool, tenantID)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, nil, testKey("locator-1"))
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, map[string]string{"keyLocatorHash": "locator-1"})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, map[string]string{"keyLocatorHash": "locator-1"})
	require.NoError(t, err)
	assert.False(t, removed)
}
