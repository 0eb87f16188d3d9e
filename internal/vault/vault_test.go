package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCipher_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewKeyCipher("tenant-storage-key")
	require.NoError(t, err)

	for _, plain := range []string{"", "hello", `{"city":"Warsaw"}`, "zażółć gęślą jaźń"} {
		sealed, err := c.Encrypt(ctx, plain)
		require.NoError(t, err)

		got, err := c.Decrypt(ctx, sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestKeyCipher_NonDeterministicNonce(t *testing.T) {
	ctx := context.Background()
	c, err := NewKeyCipher("tenant-storage-key")
	require.NoError(t, err)

	a, err := c.Encrypt(ctx, "same input")
	require.NoError(t, err)
	b, err := c.Encrypt(ctx, "same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each encryption should use a fresh nonce")
}

func TestKeyCipher_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	c1, err := NewKeyCipher("tenant-one")
	require.NoError(t, err)
	c2, err := NewKeyCipher("tenant-two")
	require.NoError(t, err)

	sealed, err := c1.Encrypt(ctx, "secret address")
	require.NoError(t, err)

	_, err = c2.Decrypt(ctx, sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestKeyCipher_MalformedCiphertext(t *testing.T) {
	ctx := context.Background()
	c, err := NewKeyCipher("tenant-one")
	require.NoError(t, err)

	for _, bad := range []string{"not base64!!", "YWJj", ""} {
		_, err := c.Decrypt(ctx, bad)
		assert.ErrorIs(t, err, ErrDecrypt, "input %q", bad)
	}
}

func TestKeyCipher_SameKeySameCipher(t *testing.T) {
	ctx := context.Background()
	c1, err := NewKeyCipher("stable-key")
	require.NoError(t, err)
	c2, err := NewKeyCipher("stable-key")
	require.NoError(t, err)

	sealed, err := c1.Encrypt(ctx, "persisted earlier")
	require.NoError(t, err)

	got, err := c2.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "persisted earlier", got)
}

func TestPassthrough(t *testing.T) {
	ctx := context.Background()
	var p Passthrough

	sealed, err := p.Encrypt(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)

	got, err := p.Decrypt(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}
