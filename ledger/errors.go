/*
errors.go - Centralized error types for the commission ledger

PURPOSE:
  All error kinds in one place. Every structured error unwraps to a
  sentinel so callers can branch with errors.Is and still read details
  with errors.As.

ERROR KINDS:
  ValidationError            malformed input, never partially applied
  NotFoundError              unknown order/period/brand id
  DuplicateOrderNumberError  order number already taken
  ImmutableOrderError        order is PAID
  PeriodLockedError          current or target period is paid
  DuplicateBrandNameError    brand name clashes case-insensitively
  ErrStoreBusy               the store gave up on a contended write; retryable

USAGE:
  if errors.Is(err, ledger.ErrPeriodLocked) {
      var locked *ledger.PeriodLockedError
      errors.As(err, &locked)
  }

SEE ALSO:
  - api/errors.go: maps these kinds to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrImmutableOrder       = errors.New("order is paid and cannot be changed")
	ErrPeriodLocked         = errors.New("period is paid and locked")
	ErrDuplicateBrandName   = errors.New("brand name already exists")
	ErrStoreBusy            = errors.New("store busy, retry later")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string // "order", "period", "brand"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type DuplicateOrderNumberError struct {
	Number int64
}

func (e *DuplicateOrderNumberError) Error() string {
	return fmt.Sprintf("order number %d already exists", e.Number)
}

func (e *DuplicateOrderNumberError) Unwrap() error { return ErrDuplicateOrderNumber }

type ImmutableOrderError struct {
	OrderID OrderID
	Number  int64
}

func (e *ImmutableOrderError) Error() string {
	return fmt.Sprintf("order #%d is PAID and cannot be changed", e.Number)
}

func (e *ImmutableOrderError) Unwrap() error { return ErrImmutableOrder }

type PeriodLockedError struct {
	PeriodID  PeriodID
	StartDate Date
	EndDate   Date
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %s..%s is paid and locked", e.StartDate, e.EndDate)
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

func lockedError(p *Period) *PeriodLockedError {
	return &PeriodLockedError{PeriodID: p.ID, StartDate: p.StartDate, EndDate: p.EndDate}
}

type DuplicateBrandNameError struct {
	Name string
}

func (e *DuplicateBrandNameError) Error() string {
	return fmt.Sprintf("brand %q already exists", e.Name)
}

func (e *DuplicateBrandNameError) Unwrap() error { return ErrDuplicateBrandName }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || IsNotFound(err) || IsConflict(err)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request clashes with the stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateOrderNumber) ||
		errors.Is(err, ErrDuplicateBrandName) ||
		errors.Is(err, ErrImmutableOrder) ||
		errors.Is(err, ErrPeriodLocked)
}

// isSkippable reports the per-item conditions bulk operations swallow.
func isSkippable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrImmutableOrder) ||
		errors.Is(err, ErrPeriodLocked)
}
