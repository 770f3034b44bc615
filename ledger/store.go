/*
store.go - Persistence interface for the commission ledger

PURPOSE:
  Defines the boundary between the lifecycle rules and the backing store.
  The rules in this package are written once against Store; each
  implementation only has to persist records faithfully.

KEY INTERFACES:
  Store:   Reads and writes of orders, audit entries, periods, brands, settings
  TxStore: Store plus all-or-nothing execution of a unit of work

CONTRACT:
  - Not-found reads return (nil, nil); the caller decides the error kind.
  - InsertOrder / UpdateOrder return ErrDuplicateOrderNumber on a number clash.
  - InsertBrand / UpdateBrand return ErrDuplicateBrandName when another brand
    has the same name ignoring case.
  - InsertPeriodIfAbsent is a no-op when the period id or its (start, end)
    pair already exists.
  - DeleteOrder also removes the order's audit trail.
  - ReplaceAll deletes every record, then inserts the snapshot.

IMPLEMENTATIONS:
  - store/memory:   In-memory, snapshot + rollback
  - store/sqlstore: SQLite or PostgreSQL through database/sql
  - store/kv:       Redis documents with WATCH/MULTI transactions

SEE ALSO:
  - store/storetest: Conformance suite every implementation runs
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Orders. Reads include the audit history and the brand name.
	GetOrder(ctx context.Context, id OrderID) (*Order, error)
	GetOrderByNumber(ctx context.Context, number int64) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	MaxOrderNumber(ctx context.Context) (int64, error)
	// InsertOrder persists the order together with its History.
	InsertOrder(ctx context.Context, o Order) error
	// UpdateOrder rewrites the order's fields. History is not touched.
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id OrderID) error
	AppendAudit(ctx context.Context, id OrderID, entries ...AuditLogEntry) error

	// Periods
	GetPeriod(ctx context.Context, id PeriodID) (*Period, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	InsertPeriodIfAbsent(ctx context.Context, p Period) error
	UpdatePeriod(ctx context.Context, p Period) error
	// AggregatePeriod computes totals over the orders currently in the period.
	AggregatePeriod(ctx context.Context, id PeriodID) (PeriodTotals, error)

	// Brands
	GetBrand(ctx context.Context, id BrandID) (*Brand, error)
	// FindBrandByName matches ignoring case, preferring an exact-case match.
	FindBrandByName(ctx context.Context, name string) (*Brand, error)
	ListBrands(ctx context.Context) ([]Brand, error)
	InsertBrand(ctx context.Context, b Brand) error
	UpdateBrand(ctx context.Context, b Brand) error
	DeleteBrand(ctx context.Context, id BrandID) error
	CountOrdersByBrand(ctx context.Context, id BrandID) (int, error)

	// Settings
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	ReplaceAll(ctx context.Context, snap Snapshot) error
}

// OrderFilter narrows ListOrders. Zero values match everything.
// Results are ordered newest first by CreatedAt.
type OrderFilter struct {
	PeriodID PeriodID
	Status   OrderStatus
	BrandID  BrandID
	From     *Date
	To       *Date
}

// Match reports whether o passes the filter.
func (f OrderFilter) Match(o Order) bool {
	if f.PeriodID != "" && o.PeriodID != f.PeriodID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.BrandID != "" && o.BrandID != f.BrandID {
		return false
	}
	if f.From != nil && o.EntryDate.Before(*f.From) {
		return false
	}
	if f.To != nil && o.EntryDate.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is discarded.
	// If fn returns nil, the writes are committed together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
