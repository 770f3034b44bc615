package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORTS - Dashboard aggregates over orders
// =============================================================================

type MonthTotals struct {
	Total   decimal.Decimal `json:"total"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
}

type MonthlyStats struct {
	CurrentMonth MonthTotals `json:"currentMonth"`
	PrevMonth    MonthTotals `json:"prevMonth"`
	// Growth is the percent change of commission against the previous
	// month; 100 when the previous month had none.
	Growth decimal.Decimal `json:"growth"`
}

// MonthlyStats sums commission by entry month for the current and the
// previous calendar month.
func (m *Manager) MonthlyStats(ctx context.Context) (MonthlyStats, error) {
	today := m.today()
	from := StartOfMonth(today.Year(), today.Month()).AddMonths(-1)
	to := EndOfMonth(today.Year(), today.Month())
	orders, err := m.store.ListOrders(ctx, OrderFilter{From: &from, To: &to})
	if err != nil {
		return MonthlyStats{}, err
	}

	current, prev := today.MonthKey(), from.MonthKey()
	var stats MonthlyStats
	for _, o := range orders {
		var bucket *MonthTotals
		switch o.EntryDate.MonthKey() {
		case current:
			bucket = &stats.CurrentMonth
		case prev:
			bucket = &stats.PrevMonth
		default:
			continue
		}
		bucket.Total = bucket.Total.Add(o.CommissionValue)
		if o.Status == StatusPaid {
			bucket.Paid = bucket.Paid.Add(o.CommissionValue)
		} else {
			bucket.Pending = bucket.Pending.Add(o.CommissionValue)
		}
	}

	if stats.PrevMonth.Total.IsZero() {
		stats.Growth = hundred
	} else {
		stats.Growth = stats.CurrentMonth.Total.Sub(stats.PrevMonth.Total).
			Div(stats.PrevMonth.Total).Mul(hundred).Round(MoneyPlaces)
	}
	return stats, nil
}

type RankingEntry struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

type Rankings struct {
	TopBrands    []RankingEntry `json:"topBrands"`
	TopCustomers []RankingEntry `json:"topCustomers"`
}

// DefaultRankingLimit is the number of entries Rankings keeps per list.
const DefaultRankingLimit = 5

// Rankings lists the brands with the most commission and the customers with
// the most service value, over all orders.
func (m *Manager) Rankings(ctx context.Context, limit int) (Rankings, error) {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	orders, err := m.store.ListOrders(ctx, OrderFilter{})
	if err != nil {
		return Rankings{}, err
	}
	brands := map[string]decimal.Decimal{}
	customers := map[string]decimal.Decimal{}
	for _, o := range orders {
		brands[o.BrandName] = brands[o.BrandName].Add(o.CommissionValue)
		customers[o.CustomerName] = customers[o.CustomerName].Add(o.ServiceValue)
	}
	return Rankings{
		TopBrands:    topN(brands, limit),
		TopCustomers: topN(customers, limit),
	}, nil
}

// topN sorts by value descending, then name, and keeps the first n.
func topN(values map[string]decimal.Decimal, n int) []RankingEntry {
	out := make([]RankingEntry, 0, len(values))
	for name, v := range values {
		out = append(out, RankingEntry{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Value.Cmp(out[j].Value); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type DailyValue struct {
	Date         Date            `json:"date"`
	ServiceValue decimal.Decimal `json:"serviceValue"`
}

// DailyServiceValues returns the service value entered on each of the last
// days days, oldest first, today included. Days without orders are zero.
func (m *Manager) DailyServiceValues(ctx context.Context, days int) ([]DailyValue, error) {
	if days <= 0 {
		return nil, invalid("days", "must be positive")
	}
	to := m.today()
	from := to.AddDays(-(days - 1))
	orders, err := m.store.ListOrders(ctx, OrderFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	out := make([]DailyValue, days)
	index := make(map[string]int, days)
	for i := range out {
		d := from.AddDays(i)
		out[i] = DailyValue{Date: d, ServiceValue: decimal.Zero}
		index[d.String()] = i
	}
	for _, o := range orders {
		if i, ok := index[o.EntryDate.String()]; ok {
			out[i].ServiceValue = out[i].ServiceValue.Add(o.ServiceValue)
		}
	}
	return out, nil
}
