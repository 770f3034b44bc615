/*
handlers_test.go - HTTP tests for the order, period, brand and settings API

Tests run the full router over an in-memory store with a fixed clock
(2024-03-20), so period ids and duplicate dates are predictable.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/memory"
)

var testNow = time.Date(2024, time.March, 20, 14, 30, 0, 0, time.UTC)

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *memory.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.New()
	m := ledger.NewManager(st, ledger.WithClock(func() time.Time { return testNow }))
	require.NoError(t, m.Bootstrap(context.Background()))
	h := NewHandler(m)
	return &testServer{
		handler: h,
		router:  NewRouter(h, RouterOptions{Logger: zerolog.Nop(), RequestTimeout: 5 * time.Second}),
		store:   st,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createOrder(t *testing.T, number int64, day, value string) ledger.Order {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/orders", map[string]any{
		"osNumber":     number,
		"entryDate":    day,
		"customerName": "Ana",
		"brand":        "Samsung",
		"serviceValue": value,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ledger.Order](t, rec)
}

// =============================================================================
// ORDERS
// =============================================================================

func TestCreateOrder_ComputesCommissionAndPeriod(t *testing.T) {
	// GIVEN: A fresh ledger with the default 10% commission
	s := newTestServer(t)

	// WHEN: An order is created
	o := s.createOrder(t, 1001, "2024-03-10", "250.00")

	// THEN: It lands in the first half of March with 10% commission
	assert.Equal(t, ledger.PeriodID("2024-03-H1"), o.PeriodID)
	assert.Equal(t, "25", o.CommissionValue.String())
	assert.Equal(t, ledger.StatusPending, o.Status)
	require.Len(t, o.History, 1)
	assert.Equal(t, ledger.AuditCreated, o.History[0].Action)
	assert.Equal(t, ledger.SystemActor, o.History[0].User)

	// AND: The period totals include it
	rec := s.do(t, http.MethodGet, "/api/periods/2024-03-H1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[ledger.Period](t, rec)
	assert.Equal(t, 1, p.TotalOrders)
	assert.Equal(t, "250", p.TotalServiceValue.String())
}

func TestCreateOrder_RecordsActorHeader(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/orders", map[string]any{
		"osNumber":     1001,
		"entryDate":    "2024-03-10",
		"customerName": "Ana",
		"brand":        "Samsung",
		"serviceValue": 100,
	}, ActorHeader, "maria")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeBody[ledger.Order](t, rec)
	require.Len(t, o.History, 1)
	assert.Equal(t, "maria", o.History[0].User)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing number", map[string]any{"entryDate": "2024-03-10", "customerName": "A", "brand": "LG", "serviceValue": 1}},
		{"bad date", map[string]any{"osNumber": 1, "entryDate": "10/03/2024", "customerName": "A", "brand": "LG", "serviceValue": 1}},
		{"missing value", map[string]any{"osNumber": 1, "entryDate": "2024-03-10", "customerName": "A", "brand": "LG"}},
		{"negative value", map[string]any{"osNumber": 1, "entryDate": "2024-03-10", "customerName": "A", "brand": "LG", "serviceValue": -5}},
		{"blank customer", map[string]any{"osNumber": 1, "entryDate": "2024-03-10", "customerName": "   ", "brand": "LG", "serviceValue": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestCreateOrder_MalformedJSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request", decodeBody[ErrorResponse](t, rec).Error)
}

func TestCreateOrder_DuplicateNumberConflict(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, 1001, "2024-03-10", "100")

	rec := s.do(t, http.MethodPost, "/api/orders", map[string]any{
		"osNumber": 1001, "entryDate": "2024-03-11", "customerName": "B", "brand": "LG", "serviceValue": 5,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Duplicate", decodeBody[ErrorResponse](t, rec).Error)
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/orders/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrder_MovesBetweenPeriods(t *testing.T) {
	// GIVEN: An order in the first half of March
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")

	// WHEN: Its date moves into the second half
	rec := s.do(t, http.MethodPut, "/api/orders/"+string(o.ID), map[string]any{"entryDate": "2024-03-25"}, ActorHeader, "joao")

	// THEN: It is re-bucketed and the change is audited
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ledger.Order](t, rec)
	assert.Equal(t, ledger.PeriodID("2024-03-H2"), updated.PeriodID)
	require.Len(t, updated.History, 2)
	assert.Equal(t, ledger.AuditUpdated, updated.History[1].Action)
	assert.Equal(t, "joao", updated.History[1].User)
	assert.Contains(t, updated.History[1].Details, "Date: 2024-03-10 -> 2024-03-25")

	// AND: The old period is empty again
	p := decodeBody[ledger.Period](t, s.do(t, http.MethodGet, "/api/periods/2024-03-H1", nil))
	assert.Equal(t, 0, p.TotalOrders)
}

func TestUpdateOrder_InvalidStatus(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")

	rec := s.do(t, http.MethodPut, "/api/orders/"+string(o.ID), map[string]any{"status": "LOST"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaidOrder_RejectsEdits(t *testing.T) {
	// GIVEN: A paid order
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")
	rec := s.do(t, http.MethodPost, "/api/orders/"+string(o.ID)+"/status", map[string]any{"status": "PAID"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, decodeBody[ledger.Order](t, rec).PaidAt)

	// WHEN: Its value is edited
	rec = s.do(t, http.MethodPut, "/api/orders/"+string(o.ID), map[string]any{"serviceValue": 200})

	// THEN: The edit is refused as a conflict
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Order is paid", decodeBody[ErrorResponse](t, rec).Error)
}

func TestClosedPeriod_LocksOrders(t *testing.T) {
	// GIVEN: A closed period
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")
	rec := s.do(t, http.MethodPost, "/api/periods/2024-03-H1/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[ledger.Period](t, rec).Paid)

	// WHEN: Its order is reopened or deleted
	reopen := s.do(t, http.MethodPost, "/api/orders/"+string(o.ID)+"/status", map[string]any{"status": "PENDING"})
	del := s.do(t, http.MethodDelete, "/api/orders/"+string(o.ID), nil)

	// THEN: Both are refused
	assert.Equal(t, http.StatusConflict, reopen.Code)
	assert.Equal(t, "Period is locked", decodeBody[ErrorResponse](t, reopen).Error)
	assert.Equal(t, http.StatusConflict, del.Code)
}

func TestDeleteOrder(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")

	rec := s.do(t, http.MethodDelete, "/api/orders/"+string(o.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/orders/"+string(o.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateOrder_UsesTodayAndNextNumber(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1500, "2024-03-01", "80")

	rec := s.do(t, http.MethodPost, "/api/orders/"+string(o.ID)+"/duplicate", nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dup := decodeBody[ledger.Order](t, rec)
	assert.Equal(t, int64(1501), dup.Number)
	assert.Equal(t, "2024-03-20", dup.EntryDate.String())
	assert.Equal(t, ledger.PeriodID("2024-03-H2"), dup.PeriodID)
	require.Len(t, dup.History, 1)
	assert.Equal(t, ledger.AuditDuplicated, dup.History[0].Action)
}

func TestListOrders_Filters(t *testing.T) {
	s := newTestServer(t)
	a := s.createOrder(t, 1001, "2024-03-05", "10")
	s.createOrder(t, 1002, "2024-03-18", "20")
	s.do(t, http.MethodPost, "/api/orders/"+string(a.ID)+"/status", map[string]any{"status": "PAID"})

	all := decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders", nil))
	assert.Len(t, all, 2)

	paid := decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders?status=paid", nil))
	require.Len(t, paid, 1)
	assert.Equal(t, a.ID, paid[0].ID)

	second := decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders?period_id=2024-03-H2", nil))
	require.Len(t, second, 1)
	assert.Equal(t, int64(1002), second[0].Number)

	ranged := decodeBody[[]ledger.Order](t, s.do(t, http.MethodGet, "/api/orders?from=2024-03-01&to=2024-03-10", nil))
	require.Len(t, ranged, 1)
	assert.Equal(t, int64(1001), ranged[0].Number)

	rec := s.do(t, http.MethodGet, "/api/orders?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/orders", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestBulkOperations(t *testing.T) {
	// GIVEN: Two orders and an unknown id
	s := newTestServer(t)
	a := s.createOrder(t, 1001, "2024-03-05", "10")
	b := s.createOrder(t, 1002, "2024-03-06", "20")

	// WHEN: The first one and the unknown id are marked paid
	rec := s.do(t, http.MethodPost, "/api/orders/bulk/status", map[string]any{
		"ids": []ledger.OrderID{a.ID, "missing"}, "status": "PAID",
	})

	// THEN: Only the existing order is affected
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, BulkResponse{Requested: 2, Affected: 1}, decodeBody[BulkResponse](t, rec))

	// AND: Repeating it changes nothing
	rec = s.do(t, http.MethodPost, "/api/orders/bulk/status", map[string]any{
		"ids": []ledger.OrderID{a.ID}, "status": "PAID",
	})
	assert.Equal(t, 0, decodeBody[BulkResponse](t, rec).Affected)

	// WHEN: Everything is deleted
	rec = s.do(t, http.MethodPost, "/api/orders/bulk/delete", map[string]any{
		"ids": []ledger.OrderID{a.ID, b.ID, "missing"},
	})

	// THEN: The paid order is kept
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, BulkResponse{Requested: 3, Affected: 1}, decodeBody[BulkResponse](t, rec))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+string(a.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/orders/"+string(b.ID), nil).Code)
}

func TestBulkStatus_RequiresIDs(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/orders/bulk/status", map[string]any{"ids": []string{}, "status": "PAID"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PERIODS
// =============================================================================

func TestListPeriods_NewestFirst(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, 1001, "2024-02-03", "10")
	s.createOrder(t, 1002, "2024-03-18", "20")

	periods := decodeBody[[]ledger.Period](t, s.do(t, http.MethodGet, "/api/periods", nil))

	require.Len(t, periods, 2)
	assert.Equal(t, ledger.PeriodID("2024-03-H2"), periods[0].ID)
	assert.Equal(t, ledger.PeriodID("2024-02-H1"), periods[1].ID)
}

func TestGetPeriod_NotFound(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/periods/2024-01-H1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/periods/2024-01-H1/close", nil).Code)
}

func TestRecalculatePeriod_AppliesNewPercentage(t *testing.T) {
	// GIVEN: An order at 10%, then the percentage raised to 15
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "200")
	rec := s.do(t, http.MethodPut, "/api/settings", map[string]any{"fixedCommissionPercentage": 15})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: The period is recalculated
	rec = s.do(t, http.MethodPost, "/api/periods/"+string(o.PeriodID)+"/recalculate", nil)

	// THEN: The order commission follows the new percentage
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[RecalculateResponse](t, rec)
	assert.Equal(t, 1, resp.Changed)
	assert.Equal(t, "30", resp.Period.TotalCommission.String())
}

// =============================================================================
// BRANDS / SETTINGS
// =============================================================================

func TestBrands_CRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/brands", map[string]any{"name": "Nokia"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decodeBody[ledger.Brand](t, rec)

	rec = s.do(t, http.MethodPost, "/api/brands", map[string]any{"name": "nokia"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/brands/"+string(b.ID), map[string]any{"name": "Nokia Mobile"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Nokia Mobile", decodeBody[ledger.Brand](t, rec).Name)

	rec = s.do(t, http.MethodDelete, "/api/brands/"+string(b.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	brands := decodeBody[[]ledger.Brand](t, s.do(t, http.MethodGet, "/api/brands", nil))
	assert.Len(t, brands, len(ledger.DefaultBrands))
}

func TestSettings_UpdateAndValidate(t *testing.T) {
	s := newTestServer(t)

	settings := decodeBody[ledger.Settings](t, s.do(t, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, "10", settings.FixedCommissionPercentage.String())

	rec := s.do(t, http.MethodPut, "/api/settings", map[string]any{"companyName": "Oficina"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Oficina", decodeBody[ledger.Settings](t, rec).CompanyName)

	rec = s.do(t, http.MethodPut, "/api/settings", map[string]any{"fixedCommissionPercentage": 150})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DASHBOARD / BACKUP / ADMIN
// =============================================================================

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, 1001, "2024-03-18", "100")
	s.createOrder(t, 1002, "2024-02-10", "50")

	rec := s.do(t, http.MethodGet, "/api/dashboard", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[DashboardResponse](t, rec)
	assert.Equal(t, "10", resp.Stats.CurrentMonth.Total.String())
	assert.Equal(t, "5", resp.Stats.PrevMonth.Total.String())
	assert.Equal(t, "100", resp.Stats.Growth.String())
	assert.Len(t, resp.Last7, 7)
	require.NotEmpty(t, resp.Rankings.TopBrands)
	assert.Equal(t, "Samsung", resp.Rankings.TopBrands[0].Name)
}

func TestBackup_ExportImportRoundTrip(t *testing.T) {
	// GIVEN: A ledger with one order, exported
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")
	rec := s.do(t, http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="backup-2024-03-20.json"`, rec.Header().Get("Content-Disposition"))
	snap := decodeBody[ledger.Snapshot](t, rec)
	assert.Equal(t, ledger.SnapshotVersion, snap.Version)

	// WHEN: The order is deleted and the backup restored
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/orders/"+string(o.ID), nil).Code)
	rec = s.do(t, http.MethodPost, "/api/backup", snap)

	// THEN: The order is back
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[map[string]int](t, rec)["orders"])
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+string(o.ID), nil).Code)
}

func TestBackup_RejectsInvalidSnapshot(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")

	rec := s.do(t, http.MethodPost, "/api/backup", map[string]any{"version": "1.0", "orders": []map[string]any{{"id": "x"}}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+string(o.ID), nil).Code)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	// GIVEN: A period whose cached totals were tampered with
	s := newTestServer(t)
	o := s.createOrder(t, 1001, "2024-03-10", "100")
	ctx := context.Background()
	p, err := s.store.GetPeriod(ctx, o.PeriodID)
	require.NoError(t, err)
	p.TotalOrders = 7
	require.NoError(t, s.store.UpdatePeriod(ctx, *p))

	// WHEN: Reconciliation runs
	rec := s.do(t, http.MethodPost, "/api/admin/reconcile", nil)

	// THEN: The drift is reported and repaired
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ReconcileResponse](t, rec)
	require.Len(t, resp.Drifts, 1)
	assert.Equal(t, 7, resp.Drifts[0].Cached.Orders)
	fixed := decodeBody[ledger.Period](t, s.do(t, http.MethodGet, "/api/periods/"+string(o.PeriodID), nil))
	assert.Equal(t, 1, fixed.TotalOrders)
}

func TestReconcileStatus_WithoutScheduler(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/admin/reconcile", nil).Code)
}

// =============================================================================
// HEALTH
// =============================================================================

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.handler.Store = fakePinger{err: context.DeadlineExceeded}
	rec = s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
