// ABOUTME: Idempotent schema creation and migrations for tenant databases
// ABOUTME: Run unconditionally on every first open of a pooled handle

package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Each named schema gets its own DDL. Statements are idempotent
// (CREATE ... IF NOT EXISTS) so re-running against a migrated file is safe.
var schemaDDL = map[string]string{
	SchemaDefault: `
		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			prompt TEXT,
			welcome_info TEXT,
			expected_result TEXT,
			safety_rules TEXT,
			published INTEGER NOT NULL DEFAULT 0,
			options TEXT,
			icon TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_name TEXT,
			user_email TEXT,
			accepted_terms INTEGER NOT NULL DEFAULT 0,
			messages TEXT,
			finalized_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC);

		CREATE TABLE IF NOT EXISTS results (
			session_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_name TEXT,
			user_email TEXT,
			content TEXT,
			format TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_results_agent ON results(agent_id);

		CREATE TABLE IF NOT EXISTS stats (
			id TEXT PRIMARY KEY,
			event_name TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			created_month INTEGER NOT NULL,
			created_day INTEGER NOT NULL,
			created_year INTEGER NOT NULL,
			counter INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			UNIQUE(event_name, created_month, created_year)
		);

		CREATE TABLE IF NOT EXISTS keys (
			key_locator_hash TEXT PRIMARY KEY,
			key_hash TEXT NOT NULL,
			database_id_hash TEXT NOT NULL,
			encrypted_master_key TEXT,
			acl TEXT,
			expiry_date TEXT,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_keys_database ON keys(database_id_hash);
	`,

	SchemaCommerce: `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			agent_id TEXT,
			session_id TEXT,
			billing_address TEXT,
			shipping_address TEXT,
			attributes TEXT,
			notes TEXT,
			status_changes TEXT,
			customer TEXT,
			status TEXT NOT NULL DEFAULT '',
			email TEXT,
			subtotal TEXT,
			subtotal_incl_tax TEXT,
			subtotal_tax_value TEXT,
			total TEXT,
			total_incl_tax TEXT,
			shipping_price TEXT,
			shipping_method TEXT,
			shipping_price_tax_rate REAL NOT NULL DEFAULT 0,
			shipping_price_incl_tax TEXT,
			items TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_orders_agent ON orders(agent_id);
		CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	`,

	SchemaAudit: `
		CREATE TABLE IF NOT EXISTS audit (
			id TEXT PRIMARY KEY,
			event_name TEXT NOT NULL,
			record_locator TEXT,
			diff TEXT,
			ip TEXT,
			ua TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_event ON audit(event_name);
	`,
}

// columnMigration adds a column to an existing table when a legacy database
// predates it. SQLite has no ADD COLUMN IF NOT EXISTS, so presence is checked
// via pragma_table_info first.
type columnMigration struct {
	check  string
	apply  string
	table  string
	column string
}

var schemaMigrations = map[string][]columnMigration{
	SchemaDefault: {
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'icon'`,
			apply:  `ALTER TABLE agents ADD COLUMN icon TEXT`,
			table:  "agents",
			column: "icon",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'welcome_info'`,
			apply:  `ALTER TABLE agents ADD COLUMN welcome_info TEXT`,
			table:  "agents",
			column: "welcome_info",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('sessions') WHERE name = 'finalized_at'`,
			apply:  `ALTER TABLE sessions ADD COLUMN finalized_at TEXT`,
			table:  "sessions",
			column: "finalized_at",
		},
	},
	SchemaCommerce: {
		{
			check:  `SELECT 1 FROM pragma_table_info('orders') WHERE name = 'shipping_method'`,
			apply:  `ALTER TABLE orders ADD COLUMN shipping_method TEXT`,
			table:  "orders",
			column: "shipping_method",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('orders') WHERE name = 'attributes'`,
			apply:  `ALTER TABLE orders ADD COLUMN attributes TEXT`,
			table:  "orders",
			column: "attributes",
		},
	},
	SchemaAudit: {
		{
			check:  `SELECT 1 FROM pragma_table_info('audit') WHERE name = 'ua'`,
			apply:  `ALTER TABLE audit ADD COLUMN ua TEXT`,
			table:  "audit",
			column: "ua",
		},
	},
}

// migrate applies the DDL and pending column migrations for one schema.
// Safe to run against an already-migrated file.
func migrate(ctx context.Context, db *sql.DB, schema string, logger *slog.Logger) error {
	ddl, ok := schemaDDL[schema]
	if !ok {
		return fmt.Errorf("%w: unknown schema %q", ErrMigration, schema)
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: creating schema %q: %v", ErrMigration, schema, err)
	}

	for _, m := range schemaMigrations[schema] {
		var exists int
		err := db.QueryRowContext(ctx, m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("%w: checking %s.%s: %v", ErrMigration, m.table, m.column, err)
		}
		if _, err := db.ExecContext(ctx, m.apply); err != nil {
			return fmt.Errorf("%w: adding %s.%s: %v", ErrMigration, m.table, m.column, err)
		}
		logger.Info("applied migration", "schema", schema, "table", m.table, "column", m.column)
	}

	return nil
}
