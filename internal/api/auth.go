// ABOUTME: JWT bearer authentication for the HTTP API
// ABOUTME: Uses HS256 signing; claims carry the tenant hash and storage key

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentdoodle/doodle-server/internal/vault"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TenantClaims is the authenticated identity extracted from a bearer token.
// TenantID is the hashed tenant identifier ("sub"); StorageKey is the
// tenant's field-encryption key ("dbk") and may be empty for tenants whose
// databases hold no encrypted fields.
type TenantClaims struct {
	TenantID   string
	StorageKey string
}

// Cipher returns the field cipher matching the claims: a key cipher when a
// storage key was presented, a passthrough otherwise.
func (c TenantClaims) Cipher() (vault.Cipher, error) {
	if c.StorageKey == "" {
		return vault.Passthrough{}, nil
	}
	return vault.NewKeyCipher(c.StorageKey)
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (TenantClaims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts tenant claims. The "sub" claim is
// required; "dbk" is optional.
func (v *JWTVerifier) Verify(tokenString string) (TenantClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TenantClaims{}, ErrExpiredToken
		}
		return TenantClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return TenantClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TenantClaims{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return TenantClaims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	storageKey, _ := claims["dbk"].(string)
	return TenantClaims{TenantID: sub, StorageKey: storageKey}, nil
}

// Generate creates a new JWT token for the given tenant with expiration.
func (v *JWTVerifier) Generate(tenantID, storageKey string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": tenantID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	if storageKey != "" {
		claims["dbk"] = storageKey
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

type contextKey struct{}

// WithClaims returns a context carrying the authenticated tenant claims.
func WithClaims(ctx context.Context, claims TenantClaims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims placed by the auth middleware, or
// false when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) (TenantClaims, bool) {
	claims, ok := ctx.Value(contextKey{}).(TenantClaims)
	return claims, ok
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// AuthMiddleware creates an HTTP middleware that extracts and validates
// bearer tokens, placing the tenant claims on the request context.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
