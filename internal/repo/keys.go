// ABOUTME: Shared access key repository keyed by key locator hash
// ABOUTME: Stores wrapped master key material, ACL JSON and expiry per key

package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
)

const keyColumns = `
	key_locator_hash, key_hash, database_id_hash, encrypted_master_key,
	acl, expiry_date, updated_at`

// KeyRepository persists shared access keys for one tenant.
type KeyRepository struct {
	base
}

// NewKeyRepository binds a repository to one tenant's default schema.
func NewKeyRepository(pool *dbpool.Pool, tenantID string) *KeyRepository {
	return &KeyRepository{base{pool: pool, tenant: tenantID, schema: dbpool.SchemaDefault}}
}

func scanKeyRow(s rowScanner) (dto.KeyDTO, error) {
	var d dto.KeyDTO
	var masterKey, acl, expiry sql.NullString

	err := s.Scan(&d.KeyLocatorHash, &d.KeyHash, &d.DatabaseIDHash,
		&masterKey, &acl, &expiry, &d.UpdatedAt)
	if err != nil {
		return d, err
	}

	d.EncryptedMasterKey = masterKey.String
	d.ACL = acl.String
	d.ExpiryDate = expiry.String
	return d, nil
}

// Upsert writes the key identified by query["keyLocatorHash"], inserting on
// first write and replacing the stored material thereafter.
func (r *KeyRepository) Upsert(ctx context.Context, query map[string]string, d dto.KeyDTO) (dto.KeyDTO, error) {
	locator := query["keyLocatorHash"]
	if locator == "" {
		locator = d.KeyLocatorHash
	}
	if locator == "" {
		return dto.KeyDTO{}, fmt.Errorf("%w: missing key locator hash", ErrValidation)
	}
	if d.KeyHash == "" {
		return dto.KeyDTO{}, fmt.Errorf("%w: missing key hash", ErrValidation)
	}
	d.KeyLocatorHash = locator
	d.UpdatedAt = nowTS()

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.KeyDTO{}, err
	}
	defer release()

	_, err = db.ExecContext(ctx, `
		INSERT INTO keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key_locator_hash) DO UPDATE SET
			key_hash = excluded.key_hash,
			database_id_hash = excluded.database_id_hash,
			encrypted_master_key = excluded.encrypted_master_key,
			acl = excluded.acl,
			expiry_date = excluded.expiry_date,
			updated_at = excluded.updated_at
	`,
		d.KeyLocatorHash, d.KeyHash, d.DatabaseIDHash,
		nullString(d.EncryptedMasterKey), nullString(d.ACL),
		nullString(d.ExpiryDate), d.UpdatedAt,
	)
	if err != nil {
		return dto.KeyDTO{}, fmt.Errorf("upserting key: %w", err)
	}

	out, err := scanKeyRow(db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE key_locator_hash = ?`, locator))
	if err != nil {
		return dto.KeyDTO{}, fmt.Errorf("querying key: %w", err)
	}
	return out, nil
}

// Get returns the key for one locator hash.
func (r *KeyRepository) Get(ctx context.Context, locator string) (dto.KeyDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.KeyDTO{}, err
	}
	defer release()

	d, err := scanKeyRow(db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE key_locator_hash = ?`, locator))
	if err == sql.ErrNoRows {
		return dto.KeyDTO{}, ErrNotFound
	}
	if err != nil {
		return dto.KeyDTO{}, fmt.Errorf("querying key: %w", err)
	}
	return d, nil
}

// Delete removes the key for query["keyLocatorHash"]; false when absent.
func (r *KeyRepository) Delete(ctx context.Context, query map[string]string) (bool, error) {
	locator := query["keyLocatorHash"]
	if locator == "" {
		return false, nil
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	result, err := db.ExecContext(ctx, `DELETE FROM keys WHERE key_locator_hash = ?`, locator)
	if err != nil {
		return false, fmt.Errorf("deleting key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindAll lists keys, optionally filtered by databaseIdHash.
func (r *KeyRepository) FindAll(ctx context.Context, filter map[string]string) ([]dto.KeyDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + keyColumns + ` FROM keys WHERE 1=1`
	args := []any{}
	if databaseID := filter["databaseIdHash"]; databaseID != "" {
		query += " AND database_id_hash = ?"
		args = append(args, databaseID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []dto.KeyDTO
	for rows.Next() {
		d, err := scanKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key row: %w", err)
		}
		keys = append(keys, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating key rows: %w", err)
	}
	return keys, nil
}
