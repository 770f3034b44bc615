/*
Package ledger is the commission ledger core.

PURPOSE:
  Tracks service orders ("O.S."), groups them into bi-weekly commission
  periods, derives each order's commission from the configured percentage,
  and keeps every period's cached totals consistent with its orders.

KEY CONCEPTS IN THIS FILE (types.go):
  - Order:         One serviced unit of work with its commission
  - Period:        A 1st-15th or 16th-end-of-month settlement bucket
  - Brand:         Manufacturer an order references
  - AuditLogEntry: Append-only history attached to an order
  - Settings:      The commission percentage applied at calculation time

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Determinism: a date maps to exactly one period id
  3. Consistency: totals are recomputed in the same transaction as the
     mutation that changed them
  4. Locking: a paid period freezes its orders for good

SEE ALSO:
  - period.go:   Period resolution
  - orders.go:   Order lifecycle rules
  - store.go:    Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrderID string
type PeriodID string
type BrandID string

// =============================================================================
// ORDER
// =============================================================================

type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	StatusPaid    OrderStatus = "PAID"
)

func (s OrderStatus) Valid() bool { return s == StatusPending || s == StatusPaid }

// Order is a single billable service order.
//
// INVARIANTS:
//   - CommissionValue == ComputeCommission(ServiceValue, percentage at calculation time)
//   - PeriodID == PeriodIDFor(EntryDate)
//   - PaidAt != nil iff Status == StatusPaid
type Order struct {
	ID              OrderID         `json:"id"`
	Number          int64           `json:"osNumber"`
	EntryDate       Date            `json:"entryDate"`
	CustomerName    string          `json:"customerName"`
	BrandID         BrandID         `json:"brandId"`
	BrandName       string          `json:"brand"`
	ServiceValue    decimal.Decimal `json:"serviceValue"`
	CommissionValue decimal.Decimal `json:"commissionValue"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	Status          OrderStatus     `json:"status"`
	PaidAt          *time.Time      `json:"paidAt"`
	PeriodID        PeriodID        `json:"periodId"`
	CreatedAt       time.Time       `json:"createdAt"`
	History         []AuditLogEntry `json:"history"`
}

// Clone returns a copy that shares no mutable state with o.
func (o Order) Clone() Order {
	c := o
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	c.History = append([]AuditLogEntry(nil), o.History...)
	return c
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is a fixed bi-weekly settlement bucket.
//
// INVARIANTS:
//   - ID is derived from (year, month, half); never two records per half-month
//   - Paid is monotonic: once true it never returns to false
//   - Totals equal the aggregate of the orders referencing the period
type Period struct {
	ID                PeriodID        `json:"id"`
	StartDate         Date            `json:"startDate"`
	EndDate           Date            `json:"endDate"`
	Paid              bool            `json:"paid"`
	PaidAt            *time.Time      `json:"paidAt"`
	TotalOrders       int             `json:"totalOrders"`
	TotalServiceValue decimal.Decimal `json:"totalServiceValue"`
	TotalCommission   decimal.Decimal `json:"totalCommission"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Contains returns true if d is within [StartDate, EndDate].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.StartDate) && d.BeforeOrEqual(p.EndDate)
}

// Totals returns the cached aggregate.
func (p Period) Totals() PeriodTotals {
	return PeriodTotals{
		Orders:       p.TotalOrders,
		ServiceValue: p.TotalServiceValue,
		Commission:   p.TotalCommission,
	}
}

func (p Period) String() string {
	return "[" + p.StartDate.String() + ", " + p.EndDate.String() + "]"
}

// PeriodTotals is the denormalized summary of a period's orders.
type PeriodTotals struct {
	Orders       int             `json:"totalOrders"`
	ServiceValue decimal.Decimal `json:"totalServiceValue"`
	Commission   decimal.Decimal `json:"totalCommission"`
}

func (t PeriodTotals) Equal(other PeriodTotals) bool {
	return t.Orders == other.Orders &&
		t.ServiceValue.Equal(other.ServiceValue) &&
		t.Commission.Equal(other.Commission)
}

// Add folds one order into the totals.
func (t PeriodTotals) Add(o Order) PeriodTotals {
	return PeriodTotals{
		Orders:       t.Orders + 1,
		ServiceValue: t.ServiceValue.Add(o.ServiceValue),
		Commission:   t.Commission.Add(o.CommissionValue),
	}
}

// =============================================================================
// BRAND
// =============================================================================

type Brand struct {
	ID        BrandID   `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditAction string

const (
	AuditCreated      AuditAction = "CREATED"
	AuditUpdated      AuditAction = "UPDATED"
	AuditDuplicated   AuditAction = "DUPLICATED"
	AuditStatusChange AuditAction = "STATUS_CHANGE"
)

// AuditLogEntry is an immutable record attached to an order. Entries are
// only ever appended, and only removed together with their order.
type AuditLogEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	User      string      `json:"user"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings holds the commission percentage applied to new and edited orders.
// It is read once at the start of each operation and passed down explicitly.
type Settings struct {
	FixedCommissionPercentage decimal.Decimal `json:"fixedCommissionPercentage"`
	CompanyName               string          `json:"companyName,omitempty"`
}

// =============================================================================
// SNAPSHOT - Full dataset for export/import
// =============================================================================

const SnapshotVersion = "1.0"

type Snapshot struct {
	Version  string    `json:"version"`
	Brands   []Brand   `json:"brands"`
	Periods  []Period  `json:"periods"`
	Orders   []Order   `json:"orders"`
	Settings *Settings `json:"settings"`
}
