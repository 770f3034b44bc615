package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/store/kv"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", badRequest("bad id"), http.StatusBadRequest},
		{"validation", &ledger.ValidationError{Field: "brand", Message: "is required"}, http.StatusBadRequest},
		{"not found", &ledger.NotFoundError{Kind: "order", ID: "x"}, http.StatusNotFound},
		{"duplicate number", ledger.ErrDuplicateOrderNumber, http.StatusConflict},
		{"paid order", &ledger.ImmutableOrderError{Number: 1}, http.StatusConflict},
		{"locked period", ledger.ErrPeriodLocked, http.StatusConflict},
		{"contended redis write", fmt.Errorf("create order: %w", kv.ErrContention), http.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := statusFor(tt.err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRespondError_BusyStoreAsksToRetry(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)

	respondError(rec, req, kv.ErrContention)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
