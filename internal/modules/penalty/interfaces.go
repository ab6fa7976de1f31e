package penalty

import (
	"context"
	"time"

	"communityboard/internal/domain"
)

type Repository interface {
	// Increment persists entry (when non-nil) in the same transaction as the
	// counter update.
	Increment(ctx context.Context, userID int64, now time.Time, entry *domain.AbuseLog, suspend func(count int) *domain.UserLimit) (int, *domain.UserLimit, error)
	GetCount(ctx context.Context, userID int64) (int, error)
	TotalCount(ctx context.Context) (int64, error)
	GetLimit(ctx context.Context, userID int64) (*domain.UserLimit, error)
	ReleaseIfLapsed(ctx context.Context, userID int64, now time.Time) (bool, error)
	ReleaseAllLapsed(ctx context.Context, now time.Time) (int64, error)
}

type AbuseLogReader interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.AbuseLog, error)
}

// Notifier is told about window transitions after they are persisted.
type Notifier interface {
	Suspended(p domain.Principal, until time.Time)
	Released(p domain.Principal)
}
