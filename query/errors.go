package query

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned when the target table does not exist.
	// The executor never creates missing tables.
	ErrTableNotFound = errors.New("table does not exist")
	// ErrTypeCoercion is returned when a value cannot be represented as
	// its declared column type.
	ErrTypeCoercion = errors.New("value does not match declared type")
	// ErrKeyConflict is returned when more than one existing row matches
	// the key columns of a write.
	ErrKeyConflict = errors.New("key columns match more than one row")
	// ErrColumnNotFound is returned when a key or filter references a
	// column that is not declared in the request.
	ErrColumnNotFound = errors.New("column is not declared")
	// ErrBackend wraps faults reported by the underlying driver.
	ErrBackend = errors.New("backend fault")
)

// backendErr tags a driver fault with ErrBackend so callers can classify it.
func backendErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
}
