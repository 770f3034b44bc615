package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// PERIOD RESOLVER - Maps a calendar date to its bi-weekly bucket
// =============================================================================

// PeriodRangeFor returns the bucket containing d: days 1-15, or day 16 to
// the last day of the month.
func PeriodRangeFor(d Date) (start, end Date) {
	if d.Day() <= 15 {
		return NewDate(d.Year(), d.Month(), 1), NewDate(d.Year(), d.Month(), 15)
	}
	return NewDate(d.Year(), d.Month(), 16), EndOfMonth(d.Year(), d.Month())
}

// PeriodIDFor derives the period identity from (year, month, half),
// e.g. "2024-03-H1" for March 1st-15th.
func PeriodIDFor(d Date) PeriodID {
	half := 1
	if d.Day() > 15 {
		half = 2
	}
	return PeriodID(fmt.Sprintf("%04d-%02d-H%d", d.Year(), int(d.Month()), half))
}

// NewPeriodFor builds an unpaid period with zeroed totals for d's bucket.
func NewPeriodFor(d Date) Period {
	start, end := PeriodRangeFor(d)
	return Period{
		ID:        PeriodIDFor(d),
		StartDate: start,
		EndDate:   end,
	}
}

// resolvePeriod returns the period for d, creating it if needed.
//
// Must run inside the caller's transaction. InsertPeriodIfAbsent is a no-op
// when another writer created the row first, so the re-read always finds
// exactly one record for the bucket.
func (m *Manager) resolvePeriod(ctx context.Context, st Store, d Date) (*Period, error) {
	id := PeriodIDFor(d)
	p, err := st.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	fresh := NewPeriodFor(d)
	fresh.CreatedAt = m.now()
	if err := st.InsertPeriodIfAbsent(ctx, fresh); err != nil {
		return nil, fmt.Errorf("create period %s: %w", id, err)
	}
	p, err = st.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("period %s missing after insert", id)
	}
	return p, nil
}

// ResolvePeriod is the get-or-create of the period containing d, run as its
// own transaction.
func (m *Manager) ResolvePeriod(ctx context.Context, d Date) (*Period, error) {
	var out *Period
	err := m.store.WithTx(ctx, func(st Store) error {
		p, err := m.resolvePeriod(ctx, st, d)
		out = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
