/*
Package sqlstore provides a database/sql implementation of ledger.TxStore.

PURPOSE:
  Persists orders, audit entries, periods, brands and settings in a
  relational database. One code path serves two dialects:
  - SQLite     (github.com/mattn/go-sqlite3, driver "sqlite3")
  - PostgreSQL (github.com/jackc/pgx/v5/stdlib, driver "pgx")
  Queries are written with "?" placeholders and rebound for PostgreSQL.

KEY TABLES:
  orders:    One row per service order; unique index on number
  audit_log: Append-only entries per order, ordered by seq
  periods:   Bi-weekly buckets; unique index on (start_date, end_date)
  brands:    Unique index on lower(name)
  settings:  Single row, id = 1

MONEY:
  Amounts are stored as decimal text and summed in Go with
  shopspring/decimal, so both dialects round identically.

CONCURRENCY:
  SQLite runs on a single connection and WithTx is serialized with a
  mutex. On PostgreSQL, period reads inside a transaction take a
  FOR UPDATE row lock, which serializes mutations of the same period;
  period creation relies on INSERT ... ON CONFLICT DO NOTHING.

USAGE:
  store, err := sqlstore.OpenSQLite("./commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mgr := ledger.NewManager(store)

MIGRATION:
  Schema is auto-migrated on open.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory:    In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-ledger/ledger"
)

// Dialect is the database/sql driver name of a supported database.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// rebind rewrites "?" placeholders to "$1", "$2", ... for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Store implements ledger.TxStore on a *sql.DB.
type Store struct {
	*conn
	db *sql.DB
	mu sync.Mutex
}

var _ ledger.TxStore = (*Store)(nil)

// OpenSQLite opens (creating if needed) a SQLite database.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open(string(SQLite), path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)
	return New(db, SQLite)
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(string(Postgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return New(db, Postgres)
}

// New wraps an open database and migrates its schema.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{conn: &conn{q: db, dialect: dialect}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.dialect == SQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, dialect: s.dialect, inTx: true}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translate(err))
	}
	return nil
}

// =============================================================================
// CONN - ledger.Store over either the pool or a transaction
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q       querier
	dialect Dialect
	inTx    bool
}

var _ ledger.Store = (*conn)(nil)

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.rebind(query), args...)
}

// forUpdate locks the selected rows until the transaction ends (PostgreSQL).
func (c *conn) forUpdate() string {
	if c.inTx && c.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

// timeLayout has fixed-width fractions so that text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// translate maps unique violations to the ledger's sentinel errors.
func translate(err error) error {
	if !isUniqueConstraintError(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "orders.number") || strings.Contains(msg, "idx_orders_number"):
		return ledger.ErrDuplicateOrderNumber
	case strings.Contains(msg, "idx_brands_name_lower"):
		return ledger.ErrDuplicateBrandName
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
