package repository

import (
	"context"
	"time"

	"communityboard/internal/domain"

	"gorm.io/gorm"
)

// AbuseLogRepository appends and lists abuse logs. Entries are never updated.
type AbuseLogRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewAbuseLogRepository(db *gorm.DB, timeout time.Duration) *AbuseLogRepository {
	return &AbuseLogRepository{db: db, timeout: timeout}
}

func (r *AbuseLogRepository) Create(ctx context.Context, entry *domain.AbuseLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return dbErr("create abuse log", r.db.WithContext(ctx).Create(entry).Error)
}

// ListByUser returns the user's logs oldest first.
func (r *AbuseLogRepository) ListByUser(ctx context.Context, userID int64) ([]domain.AbuseLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var logs []domain.AbuseLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("detected_at ASC").Order("log_id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, dbErr("list abuse logs", err)
	}
	return logs, nil
}
