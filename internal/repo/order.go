// ABOUTME: Order repository for the commerce schema, the exemplar domain repo
// ABOUTME: Encrypts sensitive fields and recomputes totals before every persist

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/agentdoodle/doodle-server/internal/dbpool"
	"github.com/agentdoodle/doodle-server/internal/dto"
	"github.com/agentdoodle/doodle-server/internal/models"
	"github.com/agentdoodle/doodle-server/internal/vault"
)

// orderSortColumns is the closed set of sortable columns for order listings.
var orderSortColumns = map[string]string{
	"createdAt": "created_at DESC",
	"status":    "status ASC",
	"email":     "email ASC",
}

const orderColumns = `
	id, agent_id, session_id,
	billing_address, shipping_address, attributes, notes, status_changes, customer,
	status, email,
	subtotal, subtotal_incl_tax, subtotal_tax_value, total, total_incl_tax,
	shipping_price, shipping_method, shipping_price_tax_rate, shipping_price_incl_tax,
	items, created_at, updated_at`

// OrderRepository persists orders in a tenant's commerce database. The cipher
// chosen at construction is applied to every sensitive field; tenants without
// a storage key pass vault.Passthrough.
type OrderRepository struct {
	base
	cipher vault.Cipher
}

// NewOrderRepository binds a repository to one tenant's commerce schema.
func NewOrderRepository(pool *dbpool.Pool, tenantID string, cipher vault.Cipher) *OrderRepository {
	return &OrderRepository{
		base:   base{pool: pool, tenant: tenantID, schema: dbpool.SchemaCommerce},
		cipher: cipher,
	}
}

// orderRow is the storage shape: sensitive fields as ciphertext, structured
// non-sensitive fields as plain JSON text.
type orderRow struct {
	id, agentID, sessionID                                string
	billingAddress, shippingAddress                       string
	attributes, notes, statusChanges, customer            string
	status, email                                         string
	subtotal, subtotalInclTax, subtotalTaxValue           string
	total, totalInclTax                                   string
	shippingPrice, shippingMethod, shippingPriceInclTax   string
	shippingPriceTaxRate                                  float64
	items                                                 string
	createdAt, updatedAt                                  string
}

// encryptJSON marshals v and seals it with the tenant cipher. Callers pass a
// concrete value (never nil) so empty defaults get encrypted, not absent ones.
func (r *OrderRepository) encryptJSON(ctx context.Context, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling field: %w", err)
	}
	return r.cipher.Encrypt(ctx, string(data))
}

func plainJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// toRow maps a DTO onto its storage record, substituting empty defaults for
// unset structured fields before encryption.
func (r *OrderRepository) toRow(ctx context.Context, d dto.OrderDTO) (*orderRow, error) {
	attributes := d.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	notes := d.Notes
	if notes == nil {
		notes = []dto.OrderNoteDTO{}
	}
	statusChanges := d.StatusChanges
	if statusChanges == nil {
		statusChanges = []dto.StatusChangeDTO{}
	}
	items := d.Items
	if items == nil {
		items = []dto.OrderItemDTO{}
	}

	row := &orderRow{
		id:                   d.ID,
		agentID:              d.AgentID,
		sessionID:            d.SessionID,
		status:               d.Status,
		statusChanges:        plainJSON(statusChanges),
		subtotal:             plainJSON(d.Subtotal),
		subtotalInclTax:      plainJSON(d.SubTotalInclTax),
		subtotalTaxValue:     plainJSON(d.SubtotalTaxValue),
		total:                plainJSON(d.Total),
		totalInclTax:         plainJSON(d.TotalInclTax),
		shippingPrice:        plainJSON(d.ShippingPrice),
		shippingMethod:       d.ShippingMethod,
		shippingPriceTaxRate: d.ShippingPriceTaxRate,
		shippingPriceInclTax: plainJSON(d.ShippingPriceInclTax),
		items:                plainJSON(items),
		createdAt:            d.CreatedAt,
		updatedAt:            d.UpdatedAt,
	}

	var err error
	if row.billingAddress, err = r.encryptJSON(ctx, d.BillingAddress); err != nil {
		return nil, err
	}
	if row.shippingAddress, err = r.encryptJSON(ctx, d.ShippingAddress); err != nil {
		return nil, err
	}
	if row.attributes, err = r.encryptJSON(ctx, attributes); err != nil {
		return nil, err
	}
	if row.notes, err = r.encryptJSON(ctx, notes); err != nil {
		return nil, err
	}
	if row.customer, err = r.encryptJSON(ctx, d.Customer); err != nil {
		return nil, err
	}
	if row.email, err = r.cipher.Encrypt(ctx, d.Email); err != nil {
		return nil, err
	}

	return row, nil
}

// fromRow decrypts and decodes a storage record back into a DTO. Decryption
// failures propagate; malformed stored JSON degrades to safe defaults.
func (r *OrderRepository) fromRow(ctx context.Context, row *orderRow) (dto.OrderDTO, error) {
	billing, err := decryptField(ctx, r.cipher, row.billingAddress)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	shipping, err := decryptField(ctx, r.cipher, row.shippingAddress)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	attributes, err := decryptField(ctx, r.cipher, row.attributes)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	notes, err := decryptField(ctx, r.cipher, row.notes)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	customer, err := decryptField(ctx, r.cipher, row.customer)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	email, err := decryptField(ctx, r.cipher, row.email)
	if err != nil {
		return dto.OrderDTO{}, err
	}

	return dto.OrderDTO{
		ID:                   row.id,
		AgentID:              row.agentID,
		SessionID:            row.sessionID,
		BillingAddress:       ParseOrDefault(billing, dto.AddressDTO{}),
		ShippingAddress:      ParseOrDefault(shipping, dto.AddressDTO{}),
		Attributes:           ParseOrDefault(attributes, map[string]any{}),
		Notes:                ParseOrDefault(notes, []dto.OrderNoteDTO{}),
		StatusChanges:        ParseOrDefault(row.statusChanges, []dto.StatusChangeDTO{}),
		Customer:             ParseOrDefault(customer, dto.CustomerDTO{}),
		Status:               row.status,
		Email:                email,
		Subtotal:             ParseOrDefault(row.subtotal, dto.PriceDTO{}),
		SubTotalInclTax:      ParseOrDefault(row.subtotalInclTax, dto.PriceDTO{}),
		SubtotalTaxValue:     ParseOrDefault(row.subtotalTaxValue, dto.PriceDTO{}),
		Total:                ParseOrDefault(row.total, dto.PriceDTO{}),
		TotalInclTax:         ParseOrDefault(row.totalInclTax, dto.PriceDTO{}),
		ShippingPrice:        ParseOrDefault(row.shippingPrice, dto.PriceDTO{}),
		ShippingMethod:       row.shippingMethod,
		ShippingPriceTaxRate: row.shippingPriceTaxRate,
		ShippingPriceInclTax: ParseOrDefault(row.shippingPriceInclTax, dto.PriceDTO{}),
		Items:                ParseOrDefault(row.items, []dto.OrderItemDTO{}),
		CreatedAt:            row.createdAt,
		UpdatedAt:            row.updatedAt,
	}, nil
}

func scanOrderRow(s rowScanner) (*orderRow, error) {
	var row orderRow
	var sessionID, shippingMethod sql.NullString

	err := s.Scan(
		&row.id, &row.agentID, &sessionID,
		&row.billingAddress, &row.shippingAddress, &row.attributes, &row.notes,
		&row.statusChanges, &row.customer,
		&row.status, &row.email,
		&row.subtotal, &row.subtotalInclTax, &row.subtotalTaxValue,
		&row.total, &row.totalInclTax,
		&row.shippingPrice, &shippingMethod, &row.shippingPriceTaxRate, &row.shippingPriceInclTax,
		&row.items, &row.createdAt, &row.updatedAt,
	)
	if err != nil {
		return nil, err
	}

	row.sessionID = sessionID.String
	row.shippingMethod = shippingMethod.String
	return &row, nil
}

// Create validates the DTO, applies domain invariants (total recomputation),
// inserts the encrypted record and returns the freshly-read-back DTO.
func (r *OrderRepository) Create(ctx context.Context, d dto.OrderDTO) (dto.OrderDTO, error) {
	order := models.OrderFromDTO(d)
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CalcTotals()

	now := nowTS()
	if order.CreatedAt == "" {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	row, err := r.toRow(ctx, order.ToDTO())
	if err != nil {
		return dto.OrderDTO{}, err
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	defer release()

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		row.id, row.agentID, nullString(row.sessionID),
		row.billingAddress, row.shippingAddress, row.attributes, row.notes,
		row.statusChanges, row.customer,
		row.status, row.email,
		row.subtotal, row.subtotalInclTax, row.subtotalTaxValue,
		row.total, row.totalInclTax,
		row.shippingPrice, nullString(row.shippingMethod), row.shippingPriceTaxRate, row.shippingPriceInclTax,
		row.items, row.createdAt, row.updatedAt,
	)
	if err != nil {
		return dto.OrderDTO{}, fmt.Errorf("inserting order: %w", err)
	}

	return r.getByID(ctx, db, row.id)
}

// getByID reads one order back through decryption. Callers hold the lease.
func (r *OrderRepository) getByID(ctx context.Context, db *sql.DB, id string) (dto.OrderDTO, error) {
	row, err := scanOrderRow(db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return dto.OrderDTO{}, ErrNotFound
	}
	if err != nil {
		return dto.OrderDTO{}, fmt.Errorf("querying order: %w", err)
	}
	return r.fromRow(ctx, row)
}

// Upsert updates the order identified by query["id"], creating it when
// absent. Totals are recomputed on both paths and updatedAt is restamped.
func (r *OrderRepository) Upsert(ctx context.Context, query map[string]string, d dto.OrderDTO) (dto.OrderDTO, error) {
	id := query["id"]
	if id == "" {
		return dto.OrderDTO{}, fmt.Errorf("%w: missing order id", ErrValidation)
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return dto.OrderDTO{}, err
	}
	defer release()

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		d.ID = id
		return r.Create(ctx, d)
	}
	if err != nil {
		return dto.OrderDTO{}, fmt.Errorf("checking order: %w", err)
	}

	order := models.OrderFromDTO(d)
	order.ID = id
	order.CalcTotals()
	order.UpdatedAt = nowTS()

	row, err := r.toRow(ctx, order.ToDTO())
	if err != nil {
		return dto.OrderDTO{}, err
	}

	updateQuery := `
		UPDATE orders SET
			agent_id = ?, session_id = ?,
			billing_address = ?, shipping_address = ?, attributes = ?, notes = ?,
			status_changes = ?, customer = ?,
			status = ?, email = ?,
			subtotal = ?, subtotal_incl_tax = ?, subtotal_tax_value = ?,
			total = ?, total_incl_tax = ?,
			shipping_price = ?, shipping_method = ?, shipping_price_tax_rate = ?, shipping_price_incl_tax = ?,
			items = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = db.ExecContext(ctx, updateQuery,
		row.agentID, nullString(row.sessionID),
		row.billingAddress, row.shippingAddress, row.attributes, row.notes,
		row.statusChanges, row.customer,
		row.status, row.email,
		row.subtotal, row.subtotalInclTax, row.subtotalTaxValue,
		row.total, row.totalInclTax,
		row.shippingPrice, nullString(row.shippingMethod), row.shippingPriceTaxRate, row.shippingPriceInclTax,
		row.items, row.updatedAt,
		id,
	)
	if err != nil {
		return dto.OrderDTO{}, fmt.Errorf("updating order: %w", err)
	}

	return r.getByID(ctx, db, id)
}

// Delete removes the order identified by query["id"]. Deleting a missing
// identifier is not an error; the bool reports whether a row was removed.
func (r *OrderRepository) Delete(ctx context.Context, query map[string]string) (bool, error) {
	id := query["id"]
	if id == "" {
		return false, nil
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	result, err := db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// FindAll returns every order matching the equality filters (id, status,
// agentId), decrypting each row.
func (r *OrderRepository) FindAll(ctx context.Context, filter map[string]string) ([]dto.OrderDTO, error) {
	db, release, err := r.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	if id := filter["id"]; id != "" {
		query += " AND id = ?"
		args = append(args, id)
	}
	if status := filter["status"]; status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if agentID := filter["agentId"]; agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []dto.OrderDTO
	for rows.Next() {
		row, err := scanOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		d, err := r.fromRow(ctx, row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}
	return orders, nil
}

// QueryAll returns one sorted, filtered page of orders plus the total match
// count. Free-text search is a case-insensitive substring match over id,
// email and status, ANDed with the equality filters.
func (r *OrderRepository) QueryAll(ctx context.Context, q PageQuery) (dto.Page[dto.OrderDTO], error) {
	page := dto.Page[dto.OrderDTO]{
		Rows:    []dto.OrderDTO{},
		Limit:   q.limit(),
		Offset:  q.Offset,
		OrderBy: q.OrderBy,
		Query:   q.Query,
	}

	orderClause, ok := orderSortColumns[q.OrderBy]
	if !ok {
		orderClause = orderSortColumns["createdAt"]
	}

	where := "WHERE 1=1"
	args := []any{}
	if agentID := q.Filter["agentId"]; agentID != "" {
		where += " AND agent_id = ?"
		args = append(args, agentID)
	}
	if id := q.Filter["id"]; id != "" {
		where += " AND id = ?"
		args = append(args, id)
	}
	if status := q.Filter["status"]; status != "" {
		where += " AND status = ?"
		args = append(args, status)
	}
	if q.Query != "" {
		where += " AND (LOWER(id) LIKE ? OR LOWER(email) LIKE ? OR LOWER(status) LIKE ?)"
		pattern := "%" + strings.ToLower(q.Query) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	db, release, err := r.lease(ctx)
	if err != nil {
		return page, err
	}
	defer release()

	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders `+where, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("counting orders: %w", err)
	}

	pageArgs := append(append([]any{}, args...), page.Limit, page.Offset)
	rows, err := db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders `+where+` ORDER BY `+orderClause+` LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return page, fmt.Errorf("querying orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		row, err := scanOrderRow(rows)
		if err != nil {
			return page, fmt.Errorf("scanning order row: %w", err)
		}
		d, err := r.fromRow(ctx, row)
		if err != nil {
			return page, err
		}
		page.Rows = append(page.Rows, d)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("iterating order rows: %w", err)
	}

	return page, nil
}
