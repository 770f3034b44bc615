/*
dto.go - Request bodies and response wrappers for the HTTP API

PURPOSE:
  Defines the JSON structures clients send. Responses reuse the ledger
  types directly (their JSON tags are the wire contract); only composite
  responses get a wrapper here.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Composite response wrappers

VALIDATION:
  Request structs carry go-playground/validator tags and are checked by
  Handler.decode before they reach the ledger. The ledger re-validates
  everything it relies on; tags only give early, field-level messages.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Response shapes
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// ORDERS
// =============================================================================

// CreateOrderRequest creates an order. Brand is a brand id or name.
type CreateOrderRequest struct {
	OSNumber      int64            `json:"osNumber" validate:"required,gt=0"`
	EntryDate     string           `json:"entryDate" validate:"required"`
	CustomerName  string           `json:"customerName" validate:"required,max=200"`
	Brand         string           `json:"brand" validate:"required,max=100"`
	ServiceValue  *decimal.Decimal `json:"serviceValue" validate:"required"`
	PaymentMethod string           `json:"paymentMethod" validate:"max=50"`
}

func (req CreateOrderRequest) toNewOrder() (ledger.NewOrder, error) {
	d, err := parseDate("entryDate", req.EntryDate)
	if err != nil {
		return ledger.NewOrder{}, err
	}
	return ledger.NewOrder{
		Number:        req.OSNumber,
		EntryDate:     d,
		CustomerName:  req.CustomerName,
		Brand:         req.Brand,
		ServiceValue:  *req.ServiceValue,
		PaymentMethod: req.PaymentMethod,
	}, nil
}

// UpdateOrderRequest is a partial update; absent fields are left unchanged.
type UpdateOrderRequest struct {
	OSNumber      *int64              `json:"osNumber" validate:"omitempty,gt=0"`
	EntryDate     *string             `json:"entryDate"`
	CustomerName  *string             `json:"customerName" validate:"omitempty,max=200"`
	Brand         *string             `json:"brand" validate:"omitempty,max=100"`
	ServiceValue  *decimal.Decimal    `json:"serviceValue"`
	PaymentMethod *string             `json:"paymentMethod" validate:"omitempty,max=50"`
	Status        *ledger.OrderStatus `json:"status" validate:"omitempty,oneof=PENDING PAID"`
}

func (req UpdateOrderRequest) toPatch() (ledger.OrderPatch, error) {
	patch := ledger.OrderPatch{
		Number:        req.OSNumber,
		CustomerName:  req.CustomerName,
		Brand:         req.Brand,
		ServiceValue:  req.ServiceValue,
		PaymentMethod: req.PaymentMethod,
		Status:        req.Status,
	}
	if req.EntryDate != nil {
		d, err := parseDate("entryDate", *req.EntryDate)
		if err != nil {
			return ledger.OrderPatch{}, err
		}
		patch.EntryDate = &d
	}
	return patch, nil
}

type StatusRequest struct {
	Status ledger.OrderStatus `json:"status" validate:"required,oneof=PENDING PAID"`
}

type BulkStatusRequest struct {
	IDs    []ledger.OrderID   `json:"ids" validate:"required,min=1,dive,required"`
	Status ledger.OrderStatus `json:"status" validate:"required,oneof=PENDING PAID"`
}

type BulkDeleteRequest struct {
	IDs []ledger.OrderID `json:"ids" validate:"required,min=1,dive,required"`
}

// BulkResponse reports how many of the requested orders were affected.
type BulkResponse struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
}

// =============================================================================
// PERIODS
// =============================================================================

type RecalculateResponse struct {
	Period  *ledger.Period `json:"period"`
	Changed int            `json:"changed"`
}

// =============================================================================
// BRANDS / SETTINGS
// =============================================================================

type BrandRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type SettingsRequest struct {
	FixedCommissionPercentage *decimal.Decimal `json:"fixedCommissionPercentage"`
	CompanyName               *string          `json:"companyName" validate:"omitempty,max=200"`
}

// =============================================================================
// DASHBOARD / ADMIN
// =============================================================================

type DashboardResponse struct {
	Stats    ledger.MonthlyStats `json:"stats"`
	Rankings ledger.Rankings     `json:"rankings"`
	Last7    []ledger.DailyValue `json:"last7Days"`
}

type ReconcileResponse struct {
	Drifts []ledger.Drift `json:"drifts"`
}

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
