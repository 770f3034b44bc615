/*
handlers.go - HTTP API handlers for the commission ledger

PURPOSE:
  Exposes the ledger manager via a REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to ledger.Manager.

ENDPOINTS:
  Orders:
    GET    /api/orders                  List (filters: status, period_id, brand_id, from, to)
    POST   /api/orders                  Create
    GET    /api/orders/{id}             Get with history
    PUT    /api/orders/{id}             Partial update
    DELETE /api/orders/{id}             Delete
    POST   /api/orders/{id}/duplicate   Copy into today's period
    POST   /api/orders/{id}/status      Change status
    POST   /api/orders/bulk/status      Change status of many
    POST   /api/orders/bulk/delete      Delete many

  Periods:
    GET    /api/periods                 List, newest first
    GET    /api/periods/{id}            Get
    POST   /api/periods/{id}/close      Close and pay
    POST   /api/periods/{id}/recalculate Apply current percentage

  Brands, settings, dashboard, backup, admin: see server.go.

ACTOR:
  The X-User header names the user recorded in audit entries; requests
  without it are recorded as "System".

ERROR HANDLING:
  Errors are returned as JSON {"error", "details"} (see errors.go):
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate number/name, paid order, locked period
  - 500: Internal errors (details logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager *ledger.Manager

	// Store is pinged by the health check when set.
	Store Pinger

	// Scheduler, when set, runs manual reconciliations so its status
	// reflects them.
	Scheduler *ReconciliationScheduler

	// DevMode enables the scenario endpoints, which replace all data.
	DevMode bool

	validate *validator.Validate
}

// NewHandler creates a handler around the manager.
func NewHandler(m *ledger.Manager) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Handler{Manager: m, validate: v}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.OrderFilter{
		PeriodID: ledger.PeriodID(q.Get("period_id")),
		Status:   ledger.OrderStatus(strings.ToUpper(q.Get("status"))),
		BrandID:  ledger.BrandID(q.Get("brand_id")),
	}
	for _, p := range []struct {
		name string
		dst  **ledger.Date
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if s := q.Get(p.name); s != "" {
			d, err := parseDate(p.name, s)
			if err != nil {
				respondError(w, r, err)
				return
			}
			*p.dst = &d
		}
	}

	orders, err := h.Manager.ListOrders(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if orders == nil {
		orders = []ledger.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	in, err := req.toNewOrder()
	if err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.Manager.CreateOrder(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Manager.GetOrder(r.Context(), orderID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.Manager.UpdateOrder(r.Context(), orderID(r), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.DeleteOrder(r.Context(), orderID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DuplicateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Manager.DuplicateOrder(r.Context(), orderID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.Manager.SetOrderStatus(r.Context(), orderID(r), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	n, err := h.Manager.BulkStatusChange(r.Context(), req.IDs, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResponse{Requested: len(req.IDs), Affected: n})
}

func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	n, err := h.Manager.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResponse{Requested: len(req.IDs), Affected: n})
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Manager.ListPeriods(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if periods == nil {
		periods = []ledger.Period{}
	}
	writeJSON(w, http.StatusOK, periods)
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Manager.GetPeriod(r.Context(), periodID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Manager.ClosePeriod(r.Context(), periodID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RecalculatePeriod(w http.ResponseWriter, r *http.Request) {
	p, n, err := h.Manager.RecalculateCommissions(r.Context(), periodID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecalculateResponse{Period: p, Changed: n})
}

// =============================================================================
// BRAND HANDLERS
// =============================================================================

func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.Manager.ListBrands(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if brands == nil {
		brands = []ledger.Brand{}
	}
	writeJSON(w, http.StatusOK, brands)
}

func (h *Handler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	var req BrandRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	b, err := h.Manager.CreateBrand(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) RenameBrand(w http.ResponseWriter, r *http.Request) {
	var req BrandRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	b, err := h.Manager.RenameBrand(r.Context(), ledger.BrandID(chi.URLParam(r, "id")), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.DeleteBrand(r.Context(), ledger.BrandID(chi.URLParam(r, "id"))); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.GetSettings(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	s, err := h.Manager.UpdateSettings(r.Context(), ledger.SettingsPatch{
		FixedCommissionPercentage: req.FixedCommissionPercentage,
		CompanyName:               req.CompanyName,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Dashboard returns monthly stats, rankings and the last seven days at once.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var resp DashboardResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		resp.Stats, err = h.Manager.MonthlyStats(ctx)
		return err
	})
	g.Go(func() (err error) {
		resp.Rankings, err = h.Manager.Rankings(ctx, ledger.DefaultRankingLimit)
		return err
	})
	g.Go(func() (err error) {
		resp.Last7, err = h.Manager.DailyServiceValues(ctx, 7)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// BACKUP
// =============================================================================

func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Manager.Export(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="backup-%s.json"`,
		h.Manager.Today()))
	writeJSON(w, http.StatusOK, snap)
}

// ImportBackup replaces all data with the uploaded snapshot.
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	var snap ledger.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		respondError(w, r, badRequest("invalid backup: %v", err))
		return
	}
	if err := h.Manager.Import(r.Context(), snap); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"brands":  len(snap.Brands),
		"periods": len(snap.Periods),
		"orders":  len(snap.Orders),
	})
}

// =============================================================================
// ADMIN
// =============================================================================

// Reconcile runs the totals reconciliation now.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var (
		drifts []ledger.Drift
		err    error
	)
	if h.Scheduler != nil {
		drifts, err = h.Scheduler.RunNow(r.Context())
	} else {
		drifts, err = h.Manager.ReconcileTotals(r.Context())
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []ledger.Drift{}
	}
	writeJSON(w, http.StatusOK, ReconcileResponse{Drifts: drifts})
}

// ReconcileStatus reports the scheduler's last run; null before the first.
func (h *Handler) ReconcileStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotFound, "Reconciliation scheduler not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.LastRun())
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into v and validates its tags.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func parseDate(field, s string) (ledger.Date, error) {
	d, err := ledger.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return ledger.Date{}, &ledger.ValidationError{Field: field, Message: err.Error()}
	}
	return d, nil
}

func orderID(r *http.Request) ledger.OrderID { return ledger.OrderID(chi.URLParam(r, "id")) }

func periodID(r *http.Request) ledger.PeriodID { return ledger.PeriodID(chi.URLParam(r, "id")) }

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
