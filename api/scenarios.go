/*
scenarios.go - Demo data sets for development and demonstrations

PURPOSE:
  Replaces the whole dataset with a known state so the dashboard, period
  closing and bulk operations can be tried without typing orders.

AVAILABLE SCENARIOS:
  demo:   Default brands, five orders spread over the last five weeks,
          with the oldest period already closed and paid
  empty:  Default brands and settings, no orders

HOW SCENARIOS WORK:
  A scenario builds a ledger.Snapshot relative to the current date and
  loads it with Manager.Import, so it goes through the same validation and
  totals recomputation as a backup restore.

USAGE VIA API:
  POST /api/scenarios/demo      (only when the server runs in development)

NOTE:
  Scenarios replace all data.

SEE ALSO:
  - ledger/backup.go: Import
  - cmd/server/main.go: -seed flag
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func(now time.Time, settings ledger.Settings) ledger.Snapshot
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "demo",
			Name:        "Demo",
			Description: "Five orders over the last five weeks; the oldest period is paid",
		},
		build: demoSnapshot,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "empty",
			Name:        "Empty",
			Description: "Default brands and settings, no orders",
		},
		build: emptySnapshot,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// LoadScenario replaces the dataset with the named scenario, built relative
// to now. The current settings are kept.
func LoadScenario(ctx context.Context, m *ledger.Manager, id string, now time.Time) error {
	s, ok := findScenario(id)
	if !ok {
		return &ledger.NotFoundError{Kind: "scenario", ID: id}
	}
	settings, err := m.GetSettings(ctx)
	if err != nil {
		return err
	}
	return m.Import(ctx, s.build(now.UTC(), settings))
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if !h.DevMode {
		writeError(w, http.StatusForbidden, "Scenarios are only available in development", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if err := LoadScenario(r.Context(), h.Manager, id, h.Manager.Now()); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": id})
}

// =============================================================================
// BUILDERS
// =============================================================================

func defaultBrands(now time.Time) []ledger.Brand {
	brands := make([]ledger.Brand, len(ledger.DefaultBrands))
	for i, name := range ledger.DefaultBrands {
		brands[i] = ledger.Brand{ID: ledger.BrandID("brand-" + name), Name: name, CreatedAt: now}
	}
	return brands
}

func emptySnapshot(now time.Time, settings ledger.Settings) ledger.Snapshot {
	return ledger.Snapshot{
		Version:  ledger.SnapshotVersion,
		Brands:   defaultBrands(now),
		Settings: &settings,
	}
}

func demoSnapshot(now time.Time, settings ledger.Settings) ledger.Snapshot {
	snap := emptySnapshot(now, settings)
	today := ledger.DateOf(now)
	paidPeriod := ledger.PeriodIDFor(today.AddDays(-35))

	rows := []struct {
		daysAgo  int
		customer string
		brand    string
		value    string
		payment  string
	}{
		{1, "Ana Souza", "Samsung", "350.00", "PIX"},
		{3, "Bruno Lima", "Apple", "890.50", "Credit Card"},
		{10, "Carla Dias", "LG", "120.00", ""},
		{20, "Diego Alves", "Motorola", "215.75", "Cash"},
		{35, "Elisa Rocha", "Samsung", "480.00", "PIX"},
	}

	periods := map[ledger.PeriodID]ledger.Period{}
	for i, row := range rows {
		entry := today.AddDays(-row.daysAgo)
		p, ok := periods[ledger.PeriodIDFor(entry)]
		if !ok {
			p = ledger.NewPeriodFor(entry)
			p.CreatedAt = now
			if p.ID == paidPeriod {
				paidAt := now
				p.Paid, p.PaidAt = true, &paidAt
			}
			periods[p.ID] = p
		}

		value := decimal.RequireFromString(row.value)
		o := ledger.Order{
			ID:              ledger.OrderID(fmt.Sprintf("demo-%d", i+1)),
			Number:          int64(5001 + i),
			EntryDate:       entry,
			CustomerName:    row.customer,
			BrandID:         ledger.BrandID("brand-" + row.brand),
			BrandName:       row.brand,
			ServiceValue:    value,
			CommissionValue: ledger.ComputeCommission(value, settings.FixedCommissionPercentage),
			PaymentMethod:   row.payment,
			Status:          ledger.StatusPending,
			PeriodID:        p.ID,
			CreatedAt:       now,
			History: []ledger.AuditLogEntry{{
				Timestamp: now,
				User:      ledger.SystemActor,
				Action:    ledger.AuditCreated,
				Details:   "Order created with value " + value.StringFixed(ledger.MoneyPlaces),
			}},
		}
		if p.Paid {
			paidAt := now
			o.Status, o.PaidAt = ledger.StatusPaid, &paidAt
		}
		snap.Orders = append(snap.Orders, o)
	}
	for _, p := range periods {
		snap.Periods = append(snap.Periods, p)
	}
	sort.Slice(snap.Periods, func(i, j int) bool { return snap.Periods[i].ID < snap.Periods[j].ID })
	return snap
}
