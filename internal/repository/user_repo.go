package repository

import (
	"context"
	"strings"
	"time"

	"communityboard/internal/domain"

	"gorm.io/gorm"
)

type UserRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewUserRepository(db *gorm.DB, timeout time.Duration) *UserRepository {
	return &UserRepository{db: db, timeout: timeout}
}

// GetByID looks a user up by the external identifier chosen at signup.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var u domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).First(&u).Error; err != nil {
		return nil, dbErr("get user", err)
	}
	return &u, nil
}

func (r *UserRepository) GetByUserID(ctx context.Context, userID int64) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var u domain.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, dbErr("get user", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return dbErr("create user", r.db.WithContext(ctx).Create(u).Error)
}
