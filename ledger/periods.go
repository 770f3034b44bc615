package ledger

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// PERIOD OPERATIONS
// =============================================================================

func (m *Manager) GetPeriod(ctx context.Context, id PeriodID) (*Period, error) {
	p, err := m.store.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "period", ID: string(id)}
	}
	return p, nil
}

// ListPeriods returns every period, most recent first.
func (m *Manager) ListPeriods(ctx context.Context) ([]Period, error) {
	periods, err := m.store.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].StartDate.After(periods[j].StartDate)
	})
	return periods, nil
}

// ClosePeriod marks a period paid and forces every member order to PAID with
// the period's paidAt. Closing an already paid period changes nothing.
func (m *Manager) ClosePeriod(ctx context.Context, id PeriodID) (*Period, error) {
	var out *Period
	closed := 0
	err := m.store.WithTx(ctx, func(st Store) error {
		closed = 0
		p, err := st.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &NotFoundError{Kind: "period", ID: string(id)}
		}
		if p.Paid {
			out = p
			return nil
		}

		now := m.now()
		p.Paid = true
		p.PaidAt = &now
		if err := st.UpdatePeriod(ctx, *p); err != nil {
			return err
		}

		orders, err := st.ListOrders(ctx, OrderFilter{PeriodID: id})
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Status == StatusPaid {
				continue
			}
			paidAt := now
			o.Status = StatusPaid
			o.PaidAt = &paidAt
			if err := st.UpdateOrder(ctx, o); err != nil {
				return err
			}
			entry := AuditLogEntry{
				Timestamp: now,
				User:      ActorFromContext(ctx),
				Action:    AuditStatusChange,
				Details:   "Period closed and paid",
			}
			if err := st.AppendAudit(ctx, o.ID, entry); err != nil {
				return err
			}
			closed++
		}

		if err := m.recomputeTotals(ctx, st, id); err != nil {
			return err
		}
		out, err = st.GetPeriod(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("period_id", string(id)).Int("orders_paid", closed).Msg("period closed")
	return out, nil
}

// RecalculateCommissions applies the current percentage to the PENDING
// orders of an unpaid period. Orders otherwise keep the commission computed
// when they were last edited. It returns the period and the number of orders
// whose commission changed.
func (m *Manager) RecalculateCommissions(ctx context.Context, id PeriodID) (*Period, int, error) {
	var out *Period
	changed := 0
	err := m.store.WithTx(ctx, func(st Store) error {
		changed = 0
		p, err := st.GetPeriod(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &NotFoundError{Kind: "period", ID: string(id)}
		}
		if p.Paid {
			return lockedError(p)
		}
		settings, err := m.settings(ctx, st)
		if err != nil {
			return err
		}
		orders, err := st.ListOrders(ctx, OrderFilter{PeriodID: id, Status: StatusPending})
		if err != nil {
			return err
		}
		for _, o := range orders {
			commission := ComputeCommission(o.ServiceValue, settings.FixedCommissionPercentage)
			if commission.Equal(o.CommissionValue) {
				continue
			}
			details := fmt.Sprintf("Commission: %s -> %s",
				o.CommissionValue.StringFixed(MoneyPlaces), commission.StringFixed(MoneyPlaces))
			o.CommissionValue = commission
			if err := st.UpdateOrder(ctx, o); err != nil {
				return err
			}
			if err := st.AppendAudit(ctx, o.ID, m.auditEntry(ctx, AuditUpdated, details)); err != nil {
				return err
			}
			changed++
		}
		if err := m.recomputeTotals(ctx, st, id); err != nil {
			return err
		}
		out, err = st.GetPeriod(ctx, id)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	m.log.Info().Str("period_id", string(id)).Int("orders_changed", changed).Msg("commissions recalculated")
	return out, changed, nil
}
