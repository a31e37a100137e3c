/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All failure kinds in one place so every caller handles each case
  explicitly with errors.Is/errors.As instead of catch-by-type ordering.

ERROR CATEGORIES:
  1. Concurrency errors - writer contention and lost optimistic races
  2. Business-rule errors - stock and validation failures
  3. Access errors - missing rows, tenancy violations

RETRY POLICY:
  Only ErrStoreBusy is ever retried automatically (by the store's retry
  layer, with bounded exponential backoff). A version conflict must reach
  the caller: re-reading and re-applying here would decide the race
  silently instead of reporting it.

SEE ALSO:
  - inventory.go: raises the conflict/stock errors
  - store/sqlite/store.go: classifies engine errors into ErrStoreBusy
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
	// ErrStoreBusy is returned when the engine reports a transient
	// busy/locked condition. Safe to retry after backing off.
	ErrStoreBusy = errors.New("store busy")

	// ErrAcquireTimeout is returned when no pooled connection became
	// available within the configured deadline.
	ErrAcquireTimeout = errors.New("connection acquire timeout")

	// ErrVersionConflict is returned when a conditional stock write
	// observed zero affected rows: another writer committed first.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInsufficientStock is returned when a mutation would drive a
	// product's stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrProductNotFound is returned when a ledger operation references
	// a product that does not exist in the workspace.
	ErrProductNotFound = errors.New("product not found")

	// ErrNotFound is returned when a requested record does not exist or
	// is not visible in the workspace.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateName is returned when a name-unique record (product,
	// supplier, customer, staff) already exists in the workspace.
	ErrDuplicateName = errors.New("name already exists in workspace")

	// ErrPermissionDenied is returned when the actor's workspace role
	// does not allow the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoFields is returned when an update carries nothing to change.
	ErrNoFields = errors.New("no fields to update")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// VersionConflictError reports which product lost an optimistic race.
type VersionConflictError struct {
	Product         string
	ExpectedVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("stock of %q changed since read (expected version %d)",
		e.Product, e.ExpectedVersion)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrVersionConflict
}

// InsufficientStockError reports how far a mutation overshot.
type InsufficientStockError struct {
	Product   string
	Available float64
	Requested float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %q: available %.3f, requested %.3f",
		e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Note: a version conflict is NOT retryable at this layer; the caller
// must re-fetch and decide.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreBusy) || errors.Is(err, ErrAcquireTimeout)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrNoFields) ||
		errors.Is(err, ErrProductNotFound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrProductNotFound)
}
