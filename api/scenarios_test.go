package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
)

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ScenarioDTO](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "demo", list[0].ID)
}

func TestLoadScenario_ForbiddenOutsideDevelopment(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, 1001, "2024-03-10", "100")

	rec := s.do(t, http.MethodPost, "/api/scenarios/demo", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	orders := decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders", nil))
	assert.Len(t, orders, 1)
}

func TestLoadScenario_ReplacesData(t *testing.T) {
	// GIVEN: A development server with one existing order
	s := newTestServer(t)
	s.handler.DevMode = true
	s.createOrder(t, 1001, "2024-03-10", "100")

	// WHEN: The demo scenario is loaded
	rec := s.do(t, http.MethodPost, "/api/scenarios/demo", nil)

	// THEN: Only the demo orders remain
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	orders := decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders", nil))
	assert.Len(t, orders, 5)

	// WHEN: The empty scenario is loaded
	rec = s.do(t, http.MethodPost, "/api/scenarios/empty", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orders = decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders", nil))
	assert.Empty(t, orders)
}

func TestLoadScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	s.handler.DevMode = true

	rec := s.do(t, http.MethodPost, "/api/scenarios/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemoScenario_OldestPeriodPaid(t *testing.T) {
	// GIVEN: The demo built on 2024-03-20
	s := newTestServer(t)
	ctx := context.Background()

	// WHEN: It is loaded
	require.NoError(t, LoadScenario(ctx, s.handler.Manager, "demo", testNow))

	// THEN: Orders span four periods and only the oldest is paid
	periods, err := s.handler.Manager.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 4)
	for _, p := range periods {
		assert.Equal(t, p.ID == "2024-02-H1", p.Paid, p.ID)
	}

	paid, err := s.handler.Manager.ListOrders(ctx, ledger.OrderFilter{Status: ledger.StatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "Elisa Rocha", paid[0].CustomerName)

	// AND: Cached totals match the orders
	drifts, err := s.handler.Manager.ReconcileTotals(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	// AND: Settings survive the load
	settings, err := s.handler.Manager.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10", settings.FixedCommissionPercentage.String())
}
