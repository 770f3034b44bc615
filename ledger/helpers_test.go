package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// now is 2024-03-20, inside the 2024-03-H2 period.
var now = time.Date(2024, time.March, 20, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) ledger.Date { return ledger.MustParseDate(s) }

func newTestManager(opts ...ledger.Option) (*ledger.Manager, *memory.Memory) {
	st := memory.New()
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return now })}, opts...)
	return ledger.NewManager(st, opts...), st
}

func mustCreate(t *testing.T, m *ledger.Manager, in ledger.NewOrder) *ledger.Order {
	t.Helper()
	if in.CustomerName == "" {
		in.CustomerName = "Customer"
	}
	if in.Brand == "" {
		in.Brand = "Samsung"
	}
	o, err := m.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	return o
}

func order(number int64, day, value string) ledger.NewOrder {
	return ledger.NewOrder{Number: number, EntryDate: date(day), ServiceValue: dec(value)}
}
