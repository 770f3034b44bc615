package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// NewOrder is the input of CreateOrder. Brand is a brand id or name.
type NewOrder struct {
	Number        int64
	EntryDate     Date
	CustomerName  string
	Brand         string
	ServiceValue  decimal.Decimal
	PaymentMethod string
}

func (in NewOrder) validate() error {
	if in.Number <= 0 {
		return invalid("osNumber", "must be positive")
	}
	if in.EntryDate.IsZero() {
		return invalid("entryDate", "is required")
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return invalid("customerName", "is required")
	}
	if strings.TrimSpace(in.Brand) == "" {
		return invalid("brand", "is required")
	}
	return validateServiceValue(in.ServiceValue)
}

// OrderPatch is a partial update. Nil fields are left unchanged.
type OrderPatch struct {
	Number        *int64
	EntryDate     *Date
	CustomerName  *string
	Brand         *string
	ServiceValue  *decimal.Decimal
	PaymentMethod *string
	Status        *OrderStatus
}

func (p OrderPatch) validate() error {
	if p.Number != nil && *p.Number <= 0 {
		return invalid("osNumber", "must be positive")
	}
	if p.EntryDate != nil && p.EntryDate.IsZero() {
		return invalid("entryDate", "must not be empty")
	}
	if p.CustomerName != nil && strings.TrimSpace(*p.CustomerName) == "" {
		return invalid("customerName", "must not be empty")
	}
	if p.Brand != nil && strings.TrimSpace(*p.Brand) == "" {
		return invalid("brand", "must not be empty")
	}
	if p.ServiceValue != nil {
		if err := validateServiceValue(*p.ServiceValue); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("status", "unknown status %q", *p.Status)
	}
	return nil
}

// =============================================================================
// CREATE
// =============================================================================

func (m *Manager) CreateOrder(ctx context.Context, in NewOrder) (*Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var out *Order
	err := m.store.WithTx(ctx, func(st Store) error {
		entry := m.auditEntry(ctx, AuditCreated,
			"Order created with value "+in.ServiceValue.StringFixed(MoneyPlaces))
		o, err := m.insertOrder(ctx, st, in, entry)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug().Str("order_id", string(out.ID)).Int64("os", out.Number).
		Str("period_id", string(out.PeriodID)).Msg("order created")
	return out, nil
}

// DuplicateOrder copies an order into today's period under the next free
// number (at least 1001), recomputing its commission with current settings.
func (m *Manager) DuplicateOrder(ctx context.Context, id OrderID) (*Order, error) {
	var out *Order
	err := m.store.WithTx(ctx, func(st Store) error {
		src, err := st.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if src == nil {
			return &NotFoundError{Kind: "order", ID: string(id)}
		}
		maxNumber, err := st.MaxOrderNumber(ctx)
		if err != nil {
			return err
		}
		if maxNumber < 1000 {
			maxNumber = 1000
		}
		in := NewOrder{
			Number:        maxNumber + 1,
			EntryDate:     m.today(),
			CustomerName:  src.CustomerName,
			Brand:         string(src.BrandID),
			ServiceValue:  src.ServiceValue,
			PaymentMethod: src.PaymentMethod,
		}
		entry := m.auditEntry(ctx, AuditDuplicated, fmt.Sprintf("Duplicated from Order #%d", src.Number))
		o, err := m.insertOrder(ctx, st, in, entry)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug().Str("order_id", string(out.ID)).Str("source_id", string(id)).Msg("order duplicated")
	return out, nil
}

func (m *Manager) insertOrder(ctx context.Context, st Store, in NewOrder, entry AuditLogEntry) (*Order, error) {
	settings, err := m.settings(ctx, st)
	if err != nil {
		return nil, err
	}
	period, err := m.resolvePeriod(ctx, st, in.EntryDate)
	if err != nil {
		return nil, err
	}
	if period.Paid {
		return nil, lockedError(period)
	}
	if err := checkNumberFree(ctx, st, in.Number, ""); err != nil {
		return nil, err
	}
	brand, err := m.resolveBrand(ctx, st, in.Brand)
	if err != nil {
		return nil, err
	}

	o := Order{
		ID:              OrderID(uuid.NewString()),
		Number:          in.Number,
		EntryDate:       in.EntryDate,
		CustomerName:    strings.TrimSpace(in.CustomerName),
		BrandID:         brand.ID,
		BrandName:       brand.Name,
		ServiceValue:    in.ServiceValue,
		CommissionValue: ComputeCommission(in.ServiceValue, settings.FixedCommissionPercentage),
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		Status:          StatusPending,
		PeriodID:        period.ID,
		CreatedAt:       m.now(),
		History:         []AuditLogEntry{entry},
	}
	if err := st.InsertOrder(ctx, o); err != nil {
		return nil, numberErr(err, o.Number)
	}
	if err := m.recomputeTotals(ctx, st, period.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateOrder applies a partial edit. PAID orders are immutable here; they
// are reopened through SetOrderStatus or BulkStatusChange.
func (m *Manager) UpdateOrder(ctx context.Context, id OrderID, patch OrderPatch) (*Order, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	var out *Order
	err := m.store.WithTx(ctx, func(st Store) error {
		cur, err := st.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return &NotFoundError{Kind: "order", ID: string(id)}
		}
		if cur.Status == StatusPaid {
			return &ImmutableOrderError{OrderID: cur.ID, Number: cur.Number}
		}
		period, err := m.orderPeriod(ctx, st, cur)
		if err != nil {
			return err
		}
		if period.Paid {
			return lockedError(period)
		}

		updated, err := m.applyPatch(ctx, st, cur, patch)
		if err != nil {
			return err
		}
		changes := DescribeChanges(*cur, updated)
		if len(changes) == 0 {
			out = cur
			return nil
		}
		if err := st.UpdateOrder(ctx, updated); err != nil {
			return numberErr(err, updated.Number)
		}
		entry := m.auditEntry(ctx, AuditUpdated, JoinChanges(changes))
		if err := st.AppendAudit(ctx, updated.ID, entry); err != nil {
			return err
		}
		updated.History = append(updated.History, entry)
		if err := m.recomputeTotals(ctx, st, cur.PeriodID); err != nil {
			return err
		}
		if updated.PeriodID != cur.PeriodID {
			if err := m.recomputeTotals(ctx, st, updated.PeriodID); err != nil {
				return err
			}
		}
		out = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug().Str("order_id", string(id)).Str("period_id", string(out.PeriodID)).Msg("order updated")
	return out, nil
}

func (m *Manager) applyPatch(ctx context.Context, st Store, cur *Order, patch OrderPatch) (Order, error) {
	updated := cur.Clone()

	if patch.Number != nil && *patch.Number != cur.Number {
		if err := checkNumberFree(ctx, st, *patch.Number, cur.ID); err != nil {
			return Order{}, err
		}
		updated.Number = *patch.Number
	}
	if patch.CustomerName != nil {
		updated.CustomerName = strings.TrimSpace(*patch.CustomerName)
	}
	if patch.PaymentMethod != nil {
		updated.PaymentMethod = strings.TrimSpace(*patch.PaymentMethod)
	}
	if patch.Brand != nil {
		brand, err := m.resolveBrand(ctx, st, *patch.Brand)
		if err != nil {
			return Order{}, err
		}
		updated.BrandID, updated.BrandName = brand.ID, brand.Name
	}
	if patch.EntryDate != nil && !patch.EntryDate.Equal(cur.EntryDate) {
		target, err := m.resolvePeriod(ctx, st, *patch.EntryDate)
		if err != nil {
			return Order{}, err
		}
		if target.Paid {
			return Order{}, lockedError(target)
		}
		updated.EntryDate = *patch.EntryDate
		updated.PeriodID = target.ID
	}
	if patch.ServiceValue != nil && !patch.ServiceValue.Equal(cur.ServiceValue) {
		settings, err := m.settings(ctx, st)
		if err != nil {
			return Order{}, err
		}
		updated.ServiceValue = *patch.ServiceValue
		updated.CommissionValue = ComputeCommission(*patch.ServiceValue, settings.FixedCommissionPercentage)
	}
	if patch.Status != nil {
		m.applyStatus(&updated, *patch.Status)
	}
	return updated, nil
}

// applyStatus moves o to status, stamping or clearing PaidAt.
func (m *Manager) applyStatus(o *Order, status OrderStatus) {
	if o.Status == status {
		return
	}
	o.Status = status
	if status == StatusPaid {
		now := m.now()
		o.PaidAt = &now
	} else {
		o.PaidAt = nil
	}
}

// =============================================================================
// STATUS
// =============================================================================

// SetOrderStatus moves one order to status. Both directions are allowed while
// the order's period is unpaid. Setting the current status is a no-op.
func (m *Manager) SetOrderStatus(ctx context.Context, id OrderID, status OrderStatus) (*Order, error) {
	if !status.Valid() {
		return nil, invalid("status", "unknown status %q", status)
	}
	var out *Order
	err := m.store.WithTx(ctx, func(st Store) error {
		o, _, err := m.changeStatus(ctx, st, id, status, "Status changed to "+string(status))
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BulkStatusChange applies SetOrderStatus to every id, skipping unknown,
// unchanged and locked orders. It returns how many orders changed.
func (m *Manager) BulkStatusChange(ctx context.Context, ids []OrderID, status OrderStatus) (int, error) {
	if !status.Valid() {
		return 0, invalid("status", "unknown status %q", status)
	}
	changed := 0
	err := m.store.WithTx(ctx, func(st Store) error {
		changed = 0
		for _, id := range uniqueIDs(ids) {
			_, ok, err := m.changeStatus(ctx, st, id, status, "Bulk status change to "+string(status))
			if err != nil {
				if isSkippable(err) {
					continue
				}
				return err
			}
			if ok {
				changed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.log.Debug().Int("requested", len(ids)).Int("changed", changed).Str("status", string(status)).Msg("bulk status change")
	return changed, nil
}

func (m *Manager) changeStatus(ctx context.Context, st Store, id OrderID, status OrderStatus, details string) (*Order, bool, error) {
	o, err := st.GetOrder(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if o == nil {
		return nil, false, &NotFoundError{Kind: "order", ID: string(id)}
	}
	period, err := m.orderPeriod(ctx, st, o)
	if err != nil {
		return nil, false, err
	}
	if period.Paid {
		return nil, false, lockedError(period)
	}
	if o.Status == status {
		return o, false, nil
	}
	m.applyStatus(o, status)
	if err := st.UpdateOrder(ctx, *o); err != nil {
		return nil, false, err
	}
	entry := m.auditEntry(ctx, AuditStatusChange, details)
	if err := st.AppendAudit(ctx, o.ID, entry); err != nil {
		return nil, false, err
	}
	o.History = append(o.History, entry)
	return o, true, nil
}

// =============================================================================
// DELETE
// =============================================================================

func (m *Manager) DeleteOrder(ctx context.Context, id OrderID) error {
	err := m.store.WithTx(ctx, func(st Store) error {
		o, err := st.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return &NotFoundError{Kind: "order", ID: string(id)}
		}
		if err := m.checkDeletable(ctx, st, o); err != nil {
			return err
		}
		if err := st.DeleteOrder(ctx, id); err != nil {
			return err
		}
		return m.recomputeTotals(ctx, st, o.PeriodID)
	})
	if err != nil {
		return err
	}
	m.log.Debug().Str("order_id", string(id)).Msg("order deleted")
	return nil
}

// BulkDelete deletes every id whose order is PENDING in an unpaid period and
// keeps the others. Each affected period is recomputed once. It returns how
// many orders were deleted.
func (m *Manager) BulkDelete(ctx context.Context, ids []OrderID) (int, error) {
	deleted := 0
	err := m.store.WithTx(ctx, func(st Store) error {
		deleted = 0
		touched := map[PeriodID]bool{}
		for _, id := range uniqueIDs(ids) {
			o, err := st.GetOrder(ctx, id)
			if err != nil {
				return err
			}
			if o == nil {
				continue
			}
			if err := m.checkDeletable(ctx, st, o); err != nil {
				if isSkippable(err) {
					continue
				}
				return err
			}
			if err := st.DeleteOrder(ctx, id); err != nil {
				return err
			}
			touched[o.PeriodID] = true
			deleted++
		}

		periods := make([]PeriodID, 0, len(touched))
		for id := range touched {
			periods = append(periods, id)
		}
		sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
		for _, id := range periods {
			if err := m.recomputeTotals(ctx, st, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.log.Debug().Int("requested", len(ids)).Int("deleted", deleted).Msg("bulk delete")
	return deleted, nil
}

func (m *Manager) checkDeletable(ctx context.Context, st Store, o *Order) error {
	if o.Status == StatusPaid {
		return &ImmutableOrderError{OrderID: o.ID, Number: o.Number}
	}
	period, err := m.orderPeriod(ctx, st, o)
	if err != nil {
		return err
	}
	if period.Paid {
		return lockedError(period)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Manager) GetOrder(ctx context.Context, id OrderID) (*Order, error) {
	o, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &NotFoundError{Kind: "order", ID: string(id)}
	}
	return o, nil
}

// ListOrders returns matching orders, newest first.
func (m *Manager) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown status %q", filter.Status)
	}
	return m.store.ListOrders(ctx, filter)
}

// =============================================================================
// HELPERS
// =============================================================================

// orderPeriod loads the period an order belongs to, recreating the record if
// it has gone missing.
func (m *Manager) orderPeriod(ctx context.Context, st Store, o *Order) (*Period, error) {
	p, err := st.GetPeriod(ctx, o.PeriodID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	return m.resolvePeriod(ctx, st, o.EntryDate)
}

// checkNumberFree fails when number belongs to an order other than self.
func checkNumberFree(ctx context.Context, st Store, number int64, self OrderID) error {
	existing, err := st.GetOrderByNumber(ctx, number)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return &DuplicateOrderNumberError{Number: number}
	}
	return nil
}

func numberErr(err error, number int64) error {
	if errors.Is(err, ErrDuplicateOrderNumber) {
		return &DuplicateOrderNumberError{Number: number}
	}
	return err
}

func uniqueIDs(ids []OrderID) []OrderID {
	seen := make(map[OrderID]bool, len(ids))
	out := make([]OrderID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
