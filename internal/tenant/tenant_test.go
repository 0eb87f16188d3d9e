package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
)

func TestHashEmail_Normalizes(t *testing.T) {
	a := HashEmail("User@Example.COM")
	b := HashEmail("  user@example.com ")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, HashEmail("other@example.com"))
}

func TestCreate_ProvisionsTenant(t *testing.T) {
	pool := dbpool.New(t.TempDir(), 10)
	t.Cleanup(func() { _ = pool.Close() })
	ctx := context.Background()

	id := HashEmail("user@example.com")
	require.False(t, Exists(pool.Root(), id))

	manifest, err := Create(ctx, pool, id, Creator{IP: "203.0.113.7", UA: "test-agent"})
	require.NoError(t, err)
	assert.Equal(t, id, manifest.EmailHash)
	assert.NotEmpty(t, manifest.CreatedAt)
	assert.True(t, Exists(pool.Root(), id))

	loaded, err := Load(pool.Root(), id)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", loaded.Creator.IP)
}

func TestCreate_ManifestImmutable(t *testing.T) {
	pool := dbpool.New(t.TempDir(), 10)
	t.Cleanup(func() { _ = pool.Close() })
	ctx := context.Background()

	id := HashEmail("user@example.com")
	first, err := Create(ctx, pool, id, Creator{IP: "203.0.113.7"})
	require.NoError(t, err)

	// A second create must not rewrite the original manifest.
	second, err := Create(ctx, pool, id, Creator{IP: "198.51.100.1"})
	require.NoError(t, err)
	assert.Equal(t, first.Creator.IP, second.Creator.IP)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestList_ReturnsProvisionedTenants(t *testing.T) {
	pool := dbpool.New(t.TempDir(), 10)
	t.Cleanup(func() { _ = pool.Close() })
	ctx := context.Background()

	tenants, err := List(pool.Root())
	require.NoError(t, err)
	assert.Empty(t, tenants)

	a := HashEmail("a@example.com")
	b := HashEmail("b@example.com")
	_, err = Create(ctx, pool, a, Creator{})
	require.NoError(t, err)
	_, err = Create(ctx, pool, b, Creator{})
	require.NoError(t, err)

	tenants, err = List(pool.Root())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, tenants)
}
