package auth

import (
	"context"
	"time"

	"communityboard/internal/domain"
)

// RevocationStore is the per-principal refresh/blacklist storage.
type RevocationStore interface {
	SetRefresh(ctx context.Context, principalID, token string, ttl time.Duration) error
	GetRefresh(ctx context.Context, principalID string) (string, bool, error)
	DeleteRefresh(ctx context.Context, principalID string) error
	BlacklistAccess(ctx context.Context, principalID, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, principalID, token string) (bool, error)
}

// UserReader resolves token subjects to principals.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// SuspensionReader reports the write state returned with a login.
type SuspensionReader interface {
	Status(ctx context.Context, p domain.Principal) (allowed bool, until *time.Time, err error)
}
