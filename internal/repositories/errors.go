package repositories

import (
	"fmt"

	"arokya/internal/apperr"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = fmt.Errorf("%w: record", apperr.ErrNotFound)
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = fmt.Errorf("%w: record already exists", apperr.ErrConflict)
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperr.ErrPersistence, op, err)
}
