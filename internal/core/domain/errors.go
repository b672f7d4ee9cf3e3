package domain

import (
	"errors"
	"fmt"
)

// ErrLockTimeout means a product lock could not be acquired in time. The
// whole unit of work was rolled back; the caller may retry the request.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ValidationError rejects a malformed request before any lock is taken.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// NotFoundError reports a referenced product that does not exist.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError reports a stock-out that would drive stock negative.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
