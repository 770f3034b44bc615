package ledger

import "context"

// =============================================================================
// TOTALS AGGREGATOR
// =============================================================================

// recomputeTotals rewrites a period's cached totals from the full aggregate
// of its current orders. Must run in the same transaction as the mutation.
func (m *Manager) recomputeTotals(ctx context.Context, st Store, id PeriodID) error {
	p, err := st.GetPeriod(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return &NotFoundError{Kind: "period", ID: string(id)}
	}
	t, err := st.AggregatePeriod(ctx, id)
	if err != nil {
		return err
	}
	if t.Equal(p.Totals()) {
		return nil
	}
	setTotals(p, t)
	return st.UpdatePeriod(ctx, *p)
}

func setTotals(p *Period, t PeriodTotals) {
	p.TotalOrders = t.Orders
	p.TotalServiceValue = t.ServiceValue
	p.TotalCommission = t.Commission
}

// Drift describes a period whose cached totals disagreed with its orders.
type Drift struct {
	PeriodID PeriodID     `json:"periodId"`
	Cached   PeriodTotals `json:"cached"`
	Actual   PeriodTotals `json:"actual"`
}

// ReconcileTotals recomputes every period and repairs the ones that drifted.
func (m *Manager) ReconcileTotals(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := m.store.WithTx(ctx, func(st Store) error {
		drifts = nil
		periods, err := st.ListPeriods(ctx)
		if err != nil {
			return err
		}
		for _, p := range periods {
			actual, err := st.AggregatePeriod(ctx, p.ID)
			if err != nil {
				return err
			}
			if actual.Equal(p.Totals()) {
				continue
			}
			drifts = append(drifts, Drift{PeriodID: p.ID, Cached: p.Totals(), Actual: actual})
			setTotals(&p, actual)
			if err := st.UpdatePeriod(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		m.log.Warn().Str("period_id", string(d.PeriodID)).
			Int("cached_orders", d.Cached.Orders).Int("actual_orders", d.Actual.Orders).
			Str("cached_commission", d.Cached.Commission.String()).
			Str("actual_commission", d.Actual.Commission.String()).
			Msg("period totals drifted, repaired")
	}
	return drifts, nil
}
