package repository

import (
	"errors"
	"fmt"

	"communityboard/internal/database"

	"gorm.io/gorm"
)

var (
	// ErrStoreUnavailable marks a retryable infrastructure failure: timeout,
	// lost connection, or a store that refused the call.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("record not found")
)

func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if database.IsUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
