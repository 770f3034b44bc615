package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// LIFECYCLE - Manager scenarios against the store under test
// =============================================================================

func runLifecycle(t *testing.T, newStore Factory) {
	ctx := ledger.WithActor(context.Background(), "tester")

	create := func(t *testing.T, m *ledger.Manager, number int64, date, value string) *ledger.Order {
		t.Helper()
		o, err := m.CreateOrder(ctx, ledger.NewOrder{
			Number:       number,
			EntryDate:    ledger.MustParseDate(date),
			CustomerName: "Customer",
			Brand:        "Samsung",
			ServiceValue: dec(value),
		})
		require.NoError(t, err)
		return o
	}

	// assertTotals checks the cached totals against the orders themselves.
	assertTotals := func(t *testing.T, st ledger.TxStore, id ledger.PeriodID) ledger.Period {
		t.Helper()
		p, err := st.GetPeriod(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p)
		orders, err := st.ListOrders(ctx, ledger.OrderFilter{PeriodID: id})
		require.NoError(t, err)
		var want ledger.PeriodTotals
		for _, o := range orders {
			want = want.Add(o)
		}
		assert.True(t, want.Equal(p.Totals()), "period %s: cached %+v, actual %+v", id, p.Totals(), want)
		return *p
	}

	t.Run("create order resolves period and commission", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		require.NoError(t, m.Bootstrap(ctx))

		// GIVEN default settings (10%)
		// WHEN an order of 200 is created on March 10th
		o := create(t, m, 5001, "2024-03-10", "200")

		// THEN commission is 20.00, status PENDING, period is March 1st-15th
		assert.True(t, o.CommissionValue.Equal(dec("20.00")))
		assert.Equal(t, ledger.StatusPending, o.Status)
		assert.Equal(t, ledger.PeriodID("2024-03-H1"), o.PeriodID)

		p := assertTotals(t, st, o.PeriodID)
		assert.Equal(t, "2024-03-01", p.StartDate.String())
		assert.Equal(t, "2024-03-15", p.EndDate.String())
		assert.Equal(t, 1, p.TotalOrders)

		// AND the order carries a CREATED entry by the acting user
		got, err := m.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.History, 1)
		assert.Equal(t, ledger.AuditCreated, got.History[0].Action)
		assert.Equal(t, "tester", got.History[0].User)
	})

	t.Run("orders in the same half month share a period", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)

		a := create(t, m, 1, "2024-03-10", "100")
		b := create(t, m, 2, "2024-03-12", "50")

		assert.Equal(t, a.PeriodID, b.PeriodID)
		p := assertTotals(t, st, a.PeriodID)
		assert.True(t, p.TotalServiceValue.Equal(dec("150")))
		assert.True(t, p.TotalCommission.Equal(dec("15")))

		periods, err := m.ListPeriods(ctx)
		require.NoError(t, err)
		assert.Len(t, periods, 1)
	})

	t.Run("concurrent creates share one period", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		require.NoError(t, m.Bootstrap(ctx))

		// WHEN many writers create orders in the same half month at once,
		// some of them resolving the period on their own as well
		const writers = 30
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			number := int64(7001 + i)
			day := ledger.MustParseDate(fmt.Sprintf("2024-03-%d", 16+i%5))
			g.Go(func() error {
				if number%3 == 0 {
					if _, err := m.ResolvePeriod(ctx, day); err != nil {
						return err
					}
				}
				_, err := m.CreateOrder(ctx, ledger.NewOrder{
					Number:       number,
					EntryDate:    day,
					CustomerName: "Customer",
					Brand:        "Samsung",
					ServiceValue: dec("100"),
				})
				return err
			})
		}

		// THEN every write succeeds into a single period
		require.NoError(t, g.Wait())
		periods, err := m.ListPeriods(ctx)
		require.NoError(t, err)
		require.Len(t, periods, 1)
		assert.Equal(t, ledger.PeriodID("2024-03-H2"), periods[0].ID)
		orders, err := m.ListOrders(ctx, ledger.OrderFilter{})
		require.NoError(t, err)
		assert.Len(t, orders, writers)

		p := assertTotals(t, st, periods[0].ID)
		assert.Equal(t, writers, p.TotalOrders)
		assert.True(t, p.TotalCommission.Equal(dec("300")), p.TotalCommission.String())
	})

	t.Run("duplicate order number fails", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		create(t, m, 7, "2024-03-10", "100")

		_, err := m.CreateOrder(ctx, ledger.NewOrder{
			Number: 7, EntryDate: ledger.MustParseDate("2024-03-11"),
			CustomerName: "Other", Brand: "Samsung", ServiceValue: dec("10"),
		})
		var dup *ledger.DuplicateOrderNumberError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, int64(7), dup.Number)
	})

	t.Run("closing a period freezes its orders", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		a := create(t, m, 1, "2024-03-10", "100")
		b := create(t, m, 2, "2024-03-12", "50")

		// WHEN the period is closed
		p, err := m.ClosePeriod(ctx, a.PeriodID)
		require.NoError(t, err)
		require.True(t, p.Paid)
		require.NotNil(t, p.PaidAt)

		// THEN both orders are PAID with the period's paidAt
		for _, id := range []ledger.OrderID{a.ID, b.ID} {
			o, err := m.GetOrder(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, ledger.StatusPaid, o.Status)
			require.NotNil(t, o.PaidAt)
			assert.True(t, o.PaidAt.Equal(*p.PaidAt))
			last := o.History[len(o.History)-1]
			assert.Equal(t, ledger.AuditStatusChange, last.Action)
			assert.Equal(t, "Period closed and paid", last.Details)
		}

		// AND edits are refused as immutable
		name := "Changed"
		_, err = m.UpdateOrder(ctx, a.ID, ledger.OrderPatch{CustomerName: &name})
		assert.True(t, errors.Is(err, ledger.ErrImmutableOrder), "got %v", err)

		// AND deletes too, leaving totals untouched
		err = m.DeleteOrder(ctx, b.ID)
		assert.True(t, errors.Is(err, ledger.ErrImmutableOrder), "got %v", err)
		after := assertTotals(t, st, a.PeriodID)
		assert.Equal(t, 2, after.TotalOrders)

		// AND new orders cannot land in the period
		_, err = m.CreateOrder(ctx, ledger.NewOrder{
			Number: 3, EntryDate: ledger.MustParseDate("2024-03-05"),
			CustomerName: "Late", Brand: "Samsung", ServiceValue: dec("10"),
		})
		assert.True(t, errors.Is(err, ledger.ErrPeriodLocked), "got %v", err)

		// AND closing again changes nothing
		again, err := m.ClosePeriod(ctx, a.PeriodID)
		require.NoError(t, err)
		assert.True(t, again.PaidAt.Equal(*p.PaidAt))
	})

	t.Run("moving an order recomputes both periods", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		o := create(t, m, 1, "2024-03-10", "100")
		create(t, m, 2, "2024-03-11", "40")

		date := ledger.MustParseDate("2024-03-25")
		value := dec("300")
		updated, err := m.UpdateOrder(ctx, o.ID, ledger.OrderPatch{EntryDate: &date, ServiceValue: &value})
		require.NoError(t, err)

		assert.Equal(t, ledger.PeriodID("2024-03-H2"), updated.PeriodID)
		assert.True(t, updated.CommissionValue.Equal(dec("30")))

		first := assertTotals(t, st, "2024-03-H1")
		second := assertTotals(t, st, "2024-03-H2")
		assert.Equal(t, 1, first.TotalOrders)
		assert.Equal(t, 1, second.TotalOrders)
		assert.Equal(t, "2024-03-31", second.EndDate.String())

		got, err := m.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		last := got.History[len(got.History)-1]
		assert.Equal(t, ledger.AuditUpdated, last.Action)
		assert.Equal(t, "Date: 2024-03-10 -> 2024-03-25, Value: 100.00 -> 300.00", last.Details)
	})

	t.Run("moving into a paid period is refused", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		closed := create(t, m, 1, "2024-03-01", "10")
		_, err := m.ClosePeriod(ctx, closed.PeriodID)
		require.NoError(t, err)
		o := create(t, m, 2, "2024-03-20", "100")

		date := ledger.MustParseDate("2024-03-02")
		_, err = m.UpdateOrder(ctx, o.ID, ledger.OrderPatch{EntryDate: &date})
		var locked *ledger.PeriodLockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, closed.PeriodID, locked.PeriodID)

		got, err := m.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-20", got.EntryDate.String())
	})

	t.Run("bulk delete keeps locked orders", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		paid := create(t, m, 1, "2024-02-05", "10")
		_, err := m.ClosePeriod(ctx, paid.PeriodID)
		require.NoError(t, err)
		a := create(t, m, 2, "2024-03-10", "100")
		b := create(t, m, 3, "2024-03-20", "50")

		n, err := m.BulkDelete(ctx, []ledger.OrderID{paid.ID, a.ID, b.ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		orders, err := m.ListOrders(ctx, ledger.OrderFilter{})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, paid.ID, orders[0].ID)
		assertTotals(t, st, a.PeriodID)
		assertTotals(t, st, b.PeriodID)
	})

	t.Run("bulk status change skips what it cannot change", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		locked := create(t, m, 1, "2024-02-05", "10")
		_, err := m.ClosePeriod(ctx, locked.PeriodID)
		require.NoError(t, err)
		a := create(t, m, 2, "2024-03-10", "100")
		b := create(t, m, 3, "2024-03-11", "50")
		_, err = m.SetOrderStatus(ctx, b.ID, ledger.StatusPaid)
		require.NoError(t, err)

		n, err := m.BulkStatusChange(ctx, []ledger.OrderID{locked.ID, a.ID, b.ID, "missing"}, ledger.StatusPaid)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := m.GetOrder(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusPaid, got.Status)
		require.NotNil(t, got.PaidAt)
		assert.Equal(t, "Bulk status change to PAID", got.History[len(got.History)-1].Details)
	})

	t.Run("duplicate copies into today's period", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		src := create(t, m, 42, "2024-03-02", "120")

		dup, err := m.DuplicateOrder(ctx, src.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1001), dup.Number)
		assert.Equal(t, "2024-03-20", dup.EntryDate.String())
		assert.Equal(t, ledger.PeriodID("2024-03-H2"), dup.PeriodID)
		assert.Equal(t, src.BrandID, dup.BrandID)
		require.Len(t, dup.History, 1)
		assert.Equal(t, "Duplicated from Order #42", dup.History[0].Details)
		assertTotals(t, st, dup.PeriodID)
	})

	t.Run("export then import restores the dataset", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		require.NoError(t, m.Bootstrap(ctx))
		a := create(t, m, 1, "2024-03-10", "100")
		_, err := m.ClosePeriod(ctx, a.PeriodID)
		require.NoError(t, err)
		create(t, m, 2, "2024-03-20", "50")

		snap, err := m.Export(ctx)
		require.NoError(t, err)
		require.NoError(t, m.DeleteBrand(ctx, mustBrand(t, m, "Apple")))

		require.NoError(t, m.Import(ctx, snap))

		again, err := m.Export(ctx)
		require.NoError(t, err)
		assert.Len(t, again.Brands, len(snap.Brands))
		assert.Len(t, again.Orders, 2)
		assert.Len(t, again.Periods, 2)
		for _, p := range again.Periods {
			assertTotals(t, st, p.ID)
		}
	})

	t.Run("reconcile repairs drifted totals", func(t *testing.T) {
		st := newStore(t)
		m := newManager(st)
		o := create(t, m, 1, "2024-03-10", "100")

		p, err := st.GetPeriod(ctx, o.PeriodID)
		require.NoError(t, err)
		p.TotalOrders = 9
		require.NoError(t, st.UpdatePeriod(ctx, *p))

		drifts, err := m.ReconcileTotals(ctx)
		require.NoError(t, err)
		require.Len(t, drifts, 1)
		assert.Equal(t, 9, drifts[0].Cached.Orders)
		assert.Equal(t, 1, drifts[0].Actual.Orders)
		assertTotals(t, st, o.PeriodID)

		drifts, err = m.ReconcileTotals(ctx)
		require.NoError(t, err)
		assert.Empty(t, drifts)
	})
}

func mustBrand(t *testing.T, m *ledger.Manager, name string) ledger.BrandID {
	t.Helper()
	brands, err := m.ListBrands(context.Background())
	require.NoError(t, err)
	for _, b := range brands {
		if b.Name == name {
			return b.ID
		}
	}
	t.Fatalf("brand %q not found", name)
	return ""
}
