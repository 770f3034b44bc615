package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/commission-ledger/ledger"
)

// =============================================================================
// ERROR MAPPING - ledger error kinds to HTTP status codes
// =============================================================================

// retryAfterSeconds is sent with 503 so clients back off before retrying.
const retryAfterSeconds = "1"

// errBadRequest marks malformed bodies and parameters found by the handlers.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to its HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ledger.ErrDuplicateOrderNumber), errors.Is(err, ledger.ErrDuplicateBrandName):
		return http.StatusConflict, "Duplicate"
	case errors.Is(err, ledger.ErrImmutableOrder):
		return http.StatusConflict, "Order is paid"
	case errors.Is(err, ledger.ErrPeriodLocked):
		return http.StatusConflict, "Period is locked"
	case errors.Is(err, ledger.ErrStoreBusy):
		return http.StatusServiceUnavailable, "Store busy, retry"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// respondError writes err as an ErrorResponse. Internal errors are logged
// and their details withheld from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

// validationError flattens validator output into one ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return &ledger.ValidationError{Field: verrs[0].Field(), Message: strings.Join(msgs, "; ")}
}
