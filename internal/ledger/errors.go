package ledger

import (
	"errors"
	"fmt"
)

// ErrStaleProjection is returned by a Store when the projected quantities a
// batch was prepared against changed before commit. The service retries a
// bounded number of times before surfacing ConcurrencyConflictError.
var ErrStaleProjection = errors.New("stock projection changed during append")

// ValidationError rejects a malformed request before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing item or location reference.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// InsufficientStockError reports a transfer that would drive a
// (item, location) pair negative. Available is reported verbatim so the
// caller can show how many units remain.
type InsufficientStockError struct {
	ItemID     uint
	LocationID uint
	Requested  int64
	Available  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of item %d at location %d: requested %d, available %d",
		e.ItemID, e.LocationID, e.Requested, e.Available)
}

// ConcurrencyConflictError reports that optimistic retries were exhausted on
// a contended (item, location) pair. The ledger is unchanged; the caller may
// re-issue the request.
type ConcurrencyConflictError struct {
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("ledger append conflicted %d times, giving up", e.Attempts)
}
