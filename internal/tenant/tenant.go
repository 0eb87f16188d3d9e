// ABOUTME: Tenant identity (hashed email) and manifest sidecar management
// ABOUTME: Provisions the per-tenant directory and default database on signup

package tenant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
)

// ManifestFileName is the per-tenant metadata sidecar inside the tenant
// directory. Written once at creation, immutable thereafter.
const ManifestFileName = "manifest.json"

// Geo is the approximate location of the creator at signup time.
type Geo struct {
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
}

// Creator captures who created the tenant database.
type Creator struct {
	IP  string `json:"ip,omitempty"`
	UA  string `json:"ua,omitempty"`
	Geo Geo    `json:"geo,omitempty"`
}

// Manifest is the write-once metadata for one tenant database.
type Manifest struct {
	EmailHash string  `json:"emailHash"`
	CreatedAt string  `json:"createdAt"`
	Creator   Creator `json:"creator"`
}

// HashEmail derives the tenant identifier from an email address. Hashing is
// case- and whitespace-insensitive so the same mailbox always maps to the
// same tenant directory.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Exists reports whether the tenant's default database file is present under
// the data root.
func Exists(root, tenantID string) bool {
	_, err := os.Stat(dbpool.DatabaseFile(root, tenantID, "", ""))
	return err == nil
}

// Create provisions a tenant: directory, empty default database (opened with
// create-if-missing, which also migrates it) and the manifest sidecar. An
// existing manifest is never rewritten, so racing creators are harmless.
func Create(ctx context.Context, pool *dbpool.Pool, tenantID string, creator Creator) (*Manifest, error) {
	dir := filepath.Join(pool.Root(), tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tenant directory: %w", err)
	}

	if _, err := pool.Acquire(ctx, tenantID, dbpool.SchemaDefault, "", true); err != nil {
		return nil, fmt.Errorf("creating default database: %w", err)
	}

	manifestPath := filepath.Join(dir, ManifestFileName)
	if existing, err := Load(pool.Root(), tenantID); err == nil {
		return existing, nil
	}

	manifest := &Manifest{
		EmailHash: tenantID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Creator:   creator,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	slog.Default().Info("created tenant database", "tenant", tenantID)
	return manifest, nil
}

// Load reads the tenant's manifest sidecar.
func Load(root, tenantID string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, tenantID, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &manifest, nil
}

// List returns the identifiers of every tenant provisioned under the root.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data root: %w", err)
	}

	var tenants []string
	for _, e := range entries {
		if e.IsDir() && Exists(root, e.Name()) {
			tenants = append(tenants, e.Name())
		}
	}
	return tenants, nil
}
