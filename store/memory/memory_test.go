package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
	"github.com/warp/commission-ledger/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.TxStore { return memory.New() })
}

func TestWithTx_CanceledContext(t *testing.T) {
	// GIVEN a canceled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := memory.New()

	// WHEN a transaction starts
	called := false
	err := st.WithTx(ctx, func(ledger.Store) error { called = true; return nil })

	// THEN it never runs
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDataset_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	ds := memory.NewDataset()
	require.NoError(t, ds.InsertBrand(ctx, ledger.Brand{ID: "b-1", Name: "LG"}))

	b, err := ds.GetBrand(ctx, "b-1")
	require.NoError(t, err)
	b.Name = "mutated"

	again, err := ds.GetBrand(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "LG", again.Name)
}

func TestDatasetFrom_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := ledger.NewPeriodFor(ledger.MustParseDate("2024-05-03"))
	snap := ledger.Snapshot{
		Brands:  []ledger.Brand{{ID: "b-1", Name: "Apple"}},
		Periods: []ledger.Period{p},
		Orders: []ledger.Order{{
			ID: "o-1", Number: 10, EntryDate: p.StartDate, BrandID: "b-1",
			Status: ledger.StatusPending, PeriodID: p.ID,
		}},
	}

	ds := memory.DatasetFrom(snap)
	o, err := ds.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "Apple", o.BrandName)

	back := ds.Snapshot()
	assert.Len(t, back.Orders, 1)
	assert.Len(t, back.Periods, 1)
	assert.Len(t, back.Brands, 1)
	assert.Nil(t, back.Settings)
}
