package sqlstore

// schema is valid for both SQLite and PostgreSQL. Dates are "YYYY-MM-DD"
// text and timestamps fixed-width RFC 3339 text, so both compare correctly
// as strings.
const schema = `
	CREATE TABLE IF NOT EXISTS brands (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Brand names are unique ignoring case
	CREATE UNIQUE INDEX IF NOT EXISTS idx_brands_name_lower
		ON brands (lower(name));

	CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TEXT,
		total_orders INTEGER NOT NULL DEFAULT 0,
		total_service_value TEXT NOT NULL DEFAULT '0',
		total_commission TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Never two records for the same half-month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_range
		ON periods (start_date, end_date);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		number BIGINT NOT NULL,
		entry_date TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		brand_id TEXT NOT NULL REFERENCES brands (id),
		service_value TEXT NOT NULL,
		commission_value TEXT NOT NULL,
		payment_method TEXT,
		status TEXT NOT NULL,
		paid_at TEXT,
		period_id TEXT NOT NULL REFERENCES periods (id),
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_number
		ON orders (number);
	CREATE INDEX IF NOT EXISTS idx_orders_period
		ON orders (period_id);
	CREATE INDEX IF NOT EXISTS idx_orders_brand
		ON orders (brand_id);
	CREATE INDEX IF NOT EXISTS idx_orders_created_at
		ON orders (created_at DESC);

	-- Append-only audit trail, removed only with its order
	CREATE TABLE IF NOT EXISTS audit_log (
		order_id TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		logged_at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		PRIMARY KEY (order_id, seq)
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY,
		fixed_commission_percentage TEXT NOT NULL,
		company_name TEXT
	);
`

// migrate creates the database schema.
func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}
