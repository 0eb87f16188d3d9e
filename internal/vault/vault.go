// ABOUTME: Field-level encryption for sensitive tenant data using AES-256-GCM
// ABOUTME: Keys are derived per tenant from its storage key via PBKDF2-SHA256

package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecrypt is returned when a ciphertext cannot be authenticated, either
// because it is malformed or because it was produced under a different key.
var ErrDecrypt = errors.New("decryption failed")

const (
	// keySalt is a fixed application salt for key derivation. Tenant
	// isolation comes from the storage key itself, which is unique per tenant.
	keySalt = "agent-doodle-vault-v1"

	pbkdf2Iterations = 4096
	keyLength        = 32
)

// Cipher transforms opaque field values on their way to and from storage.
// Implementations must be safe for concurrent use.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KeyCipher is a Cipher bound to one tenant storage key.
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher derives an AES-256 key from the tenant storage key and returns
// a ready-to-use Cipher. The same storage key always yields the same cipher,
// so values encrypted earlier for the tenant remain readable.
func NewKeyCipher(storageKey string) (*KeyCipher, error) {
	key := pbkdf2.Key([]byte(storageKey), []byte(keySalt), pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &KeyCipher{aead: aead}, nil
}

// Encrypt seals the plaintext with a fresh random nonce and returns
// base64url(nonce || ciphertext).
func (c *KeyCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed input or authentication failure
// (wrong tenant key included) yields ErrDecrypt, never corrupted plaintext.
func (c *KeyCipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

// Passthrough is the no-op Cipher used when a tenant has no storage key
// configured. Repositories hold exactly one Cipher chosen at construction
// instead of branching on key presence per field.
type Passthrough struct{}

// Encrypt returns the plaintext unchanged.
func (Passthrough) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return plaintext, nil
}

// Decrypt returns the stored value unchanged.
func (Passthrough) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return ciphertext, nil
}

var (
	_ Cipher = (*KeyCipher)(nil)
	_ Cipher = Passthrough{}
)
