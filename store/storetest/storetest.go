// Package storetest is the conformance suite every ledger.TxStore runs.
// It checks the raw store contract and then the lifecycle rules end to end
// through a ledger.Manager, so each rule is written once and exercised
// against every backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
)

// Factory returns an empty store. It registers its own cleanup.
type Factory func(t *testing.T) ledger.TxStore

// Now is the fixed clock the suite runs at.
var Now = time.Date(2024, time.March, 20, 14, 30, 0, 0, time.UTC)

// Run executes the whole suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("Contract", func(t *testing.T) { runContract(t, newStore) })
	t.Run("Lifecycle", func(t *testing.T) { runLifecycle(t, newStore) })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newManager(st ledger.TxStore) *ledger.Manager {
	return ledger.NewManager(st, ledger.WithClock(func() time.Time { return Now }))
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

func runContract(t *testing.T, newStore Factory) {
	ctx := context.Background()

	seed := func(t *testing.T, st ledger.Store) (ledger.Brand, ledger.Period) {
		t.Helper()
		b := ledger.Brand{ID: "brand-1", Name: "Samsung", CreatedAt: Now}
		require.NoError(t, st.InsertBrand(ctx, b))
		p := ledger.NewPeriodFor(ledger.MustParseDate("2024-03-10"))
		p.CreatedAt = Now
		require.NoError(t, st.InsertPeriodIfAbsent(ctx, p))
		return b, p
	}

	order := func(id ledger.OrderID, number int64, b ledger.Brand, p ledger.Period, value string) ledger.Order {
		return ledger.Order{
			ID:              id,
			Number:          number,
			EntryDate:       p.StartDate,
			CustomerName:    "Customer",
			BrandID:         b.ID,
			ServiceValue:    dec(value),
			CommissionValue: ledger.ComputeCommission(dec(value), dec("10")),
			Status:          ledger.StatusPending,
			PeriodID:        p.ID,
			CreatedAt:       Now,
			History: []ledger.AuditLogEntry{
				{Timestamp: Now, User: "System", Action: ledger.AuditCreated, Details: "created"},
			},
		}
	}

	t.Run("missing records read as nil", func(t *testing.T) {
		st := newStore(t)

		o, err := st.GetOrder(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, o)

		p, err := st.GetPeriod(ctx, "2024-03-H1")
		require.NoError(t, err)
		assert.Nil(t, p)

		b, err := st.GetBrand(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, b)

		s, err := st.GetSettings(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("period insert is idempotent", func(t *testing.T) {
		st := newStore(t)
		p := ledger.NewPeriodFor(ledger.MustParseDate("2024-02-20"))
		p.CreatedAt = Now

		require.NoError(t, st.InsertPeriodIfAbsent(ctx, p))
		require.NoError(t, st.InsertPeriodIfAbsent(ctx, p))

		periods, err := st.ListPeriods(ctx)
		require.NoError(t, err)
		require.Len(t, periods, 1)
		assert.Equal(t, "2024-02-29", periods[0].EndDate.String())
	})

	t.Run("order round trip with history and brand name", func(t *testing.T) {
		st := newStore(t)
		b, p := seed(t, st)
		require.NoError(t, st.InsertOrder(ctx, order("o-1", 5001, b, p, "200")))

		got, err := st.GetOrder(ctx, "o-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(5001), got.Number)
		assert.Equal(t, "Samsung", got.BrandName)
		assert.True(t, got.ServiceValue.Equal(dec("200")))
		assert.True(t, got.CommissionValue.Equal(dec("20")))
		assert.Equal(t, p.StartDate, got.EntryDate)
		assert.Nil(t, got.PaidAt)
		require.Len(t, got.History, 1)
		assert.Equal(t, ledger.AuditCreated, got.History[0].Action)

		byNumber, err := st.GetOrderByNumber(ctx, 5001)
		require.NoError(t, err)
		require.NotNil(t, byNumber)
		assert.Equal(t, ledger.OrderID("o-1"), byNumber.ID)
	})

	t.Run("duplicate order number is rejected", func(t *testing.T) {
		st := newStore(t)
		b, p := seed(t, st)
		require.NoError(t, st.InsertOrder(ctx, order("o-1", 5001, b, p, "100")))

		err := st.InsertOrder(ctx, order("o-2", 5001, b, p, "100"))
		assert.True(t, errors.Is(err, ledger.ErrDuplicateOrderNumber), "got %v", err)
	})

	t.Run("brand names are unique ignoring case", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "Samsung", CreatedAt: Now}))

		err := st.InsertBrand(ctx, ledger.Brand{ID: "b-2", Name: "SAMSUNG", CreatedAt: Now})
		assert.True(t, errors.Is(err, ledger.ErrDuplicateBrandName), "got %v", err)

		found, err := st.FindBrandByName(ctx, "samsung")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, ledger.BrandID("b-1"), found.ID)
	})

	t.Run("audit entries append in order and go with the order", func(t *testing.T) {
		st := newStore(t)
		b, p := seed(t, st)
		require.NoError(t, st.InsertOrder(ctx, order("o-1", 1, b, p, "100")))

		require.NoError(t, st.AppendAudit(ctx, "o-1",
			ledger.AuditLogEntry{Timestamp: Now, User: "ana", Action: ledger.AuditUpdated, Details: "first"},
			ledger.AuditLogEntry{Timestamp: Now, User: "ana", Action: ledger.AuditUpdated, Details: "second"},
		))
		got, err := st.GetOrder(ctx, "o-1")
		require.NoError(t, err)
		require.Len(t, got.History, 3)
		assert.Equal(t, "first", got.History[1].Details)
		assert.Equal(t, "second", got.History[2].Details)

		require.NoError(t, st.DeleteOrder(ctx, "o-1"))
		got, err = st.GetOrder(ctx, "o-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("aggregate sums the period's orders", func(t *testing.T) {
		st := newStore(t)
		b, p := seed(t, st)
		require.NoError(t, st.InsertOrder(ctx, order("o-1", 1, b, p, "100.10")))
		require.NoError(t, st.InsertOrder(ctx, order("o-2", 2, b, p, "50.25")))

		totals, err := st.AggregatePeriod(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, totals.Orders)
		assert.True(t, totals.ServiceValue.Equal(dec("150.35")), totals.ServiceValue.String())
		assert.True(t, totals.Commission.Equal(dec("15.04")), totals.Commission.String())
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		st := newStore(t)
		boom := errors.New("boom")

		err := st.WithTx(ctx, func(tx ledger.Store) error {
			require.NoError(t, tx.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "LG", CreatedAt: Now}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		b, err := st.GetBrand(ctx, "b-1")
		require.NoError(t, err)
		assert.Nil(t, b)
	})

	t.Run("settings upsert", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.SaveSettings(ctx, ledger.Settings{FixedCommissionPercentage: dec("10"), CompanyName: "A"}))
		require.NoError(t, st.SaveSettings(ctx, ledger.Settings{FixedCommissionPercentage: dec("12.5"), CompanyName: "B"}))

		s, err := st.GetSettings(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.True(t, s.FixedCommissionPercentage.Equal(dec("12.5")))
		assert.Equal(t, "B", s.CompanyName)
	})

	t.Run("replace all swaps the dataset", func(t *testing.T) {
		st := newStore(t)
		b, p := seed(t, st)
		require.NoError(t, st.InsertOrder(ctx, order("o-1", 1, b, p, "100")))

		nb := ledger.Brand{ID: "brand-2", Name: "Apple", CreatedAt: Now}
		np := ledger.NewPeriodFor(ledger.MustParseDate("2024-04-20"))
		np.CreatedAt = Now
		no := order("o-9", 9, nb, np, "80")
		no.EntryDate = ledger.MustParseDate("2024-04-20")

		err := st.WithTx(ctx, func(tx ledger.Store) error {
			return tx.ReplaceAll(ctx, ledger.Snapshot{
				Brands:  []ledger.Brand{nb},
				Periods: []ledger.Period{np},
				Orders:  []ledger.Order{no},
			})
		})
		require.NoError(t, err)

		orders, err := st.ListOrders(ctx, ledger.OrderFilter{})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, ledger.OrderID("o-9"), orders[0].ID)
		assert.Equal(t, "Apple", orders[0].BrandName)
		require.Len(t, orders[0].History, 1)

		brands, err := st.ListBrands(ctx)
		require.NoError(t, err)
		require.Len(t, brands, 1)

		s, err := st.GetSettings(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}
