package ledger_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
)

func TestPeriodRangeFor(t *testing.T) {
	tests := []struct {
		day        string
		start, end string
		id         ledger.PeriodID
	}{
		{"2024-03-01", "2024-03-01", "2024-03-15", "2024-03-H1"},
		{"2024-03-15", "2024-03-01", "2024-03-15", "2024-03-H1"},
		{"2024-03-16", "2024-03-16", "2024-03-31", "2024-03-H2"},
		{"2024-02-20", "2024-02-16", "2024-02-29", "2024-02-H2"},
		{"2023-02-28", "2023-02-16", "2023-02-28", "2023-02-H2"},
		{"2024-04-30", "2024-04-16", "2024-04-30", "2024-04-H2"},
		{"2024-12-31", "2024-12-16", "2024-12-31", "2024-12-H2"},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			start, end := ledger.PeriodRangeFor(date(tt.day))
			assert.Equal(t, tt.start, start.String())
			assert.Equal(t, tt.end, end.String())
			assert.Equal(t, tt.id, ledger.PeriodIDFor(date(tt.day)))
		})
	}
}

func TestNewPeriodFor_StartsUnpaidAndEmpty(t *testing.T) {
	p := ledger.NewPeriodFor(date("2024-03-10"))

	assert.False(t, p.Paid)
	assert.Nil(t, p.PaidAt)
	assert.Zero(t, p.TotalOrders)
	assert.True(t, p.TotalServiceValue.IsZero())
	assert.True(t, p.Contains(date("2024-03-01")))
	assert.True(t, p.Contains(date("2024-03-15")))
	assert.False(t, p.Contains(date("2024-03-16")))
}

func TestResolvePeriod_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	// GIVEN no periods
	// WHEN two dates of the same half month are resolved
	a, err := m.ResolvePeriod(ctx, date("2024-05-02"))
	require.NoError(t, err)
	b, err := m.ResolvePeriod(ctx, date("2024-05-14"))
	require.NoError(t, err)

	// THEN they share one record
	assert.Equal(t, a.ID, b.ID)
	periods, err := m.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
	assert.Equal(t, now, periods[0].CreatedAt)
}

func TestListPeriods_NewestFirst(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	for _, d := range []string{"2024-01-05", "2024-03-20", "2024-02-18"} {
		_, err := m.ResolvePeriod(ctx, date(d))
		require.NoError(t, err)
	}

	periods, err := m.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, ledger.PeriodID("2024-03-H2"), periods[0].ID)
	assert.Equal(t, ledger.PeriodID("2024-02-H2"), periods[1].ID)
	assert.Equal(t, ledger.PeriodID("2024-01-H1"), periods[2].ID)
}

func TestDate_JSON(t *testing.T) {
	b, err := json.Marshal(date("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01"`, string(b))

	var d ledger.Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-16T23:30:00-03:00"`), &d))
	assert.Equal(t, "2024-03-16", d.String())

	assert.Error(t, json.Unmarshal([]byte(`"16/03/2024"`), &d))
}
