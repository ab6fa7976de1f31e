package repository

import (
	"context"
	"time"

	"communityboard/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PenaltyRepository provides DB access for penalty counters and suspension
// windows.
type PenaltyRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewPenaltyRepository(db *gorm.DB, timeout time.Duration) *PenaltyRepository {
	return &PenaltyRepository{db: db, timeout: timeout}
}

// Increment adds one to the user's counter and returns the new value. The
// abuse log entry (optional), the increment and the window decided by suspend
// commit in one transaction; suspend sees the post-increment count and
// returns nil to leave the window untouched.
func (r *PenaltyRepository) Increment(
	ctx context.Context,
	userID int64,
	now time.Time,
	entry *domain.AbuseLog,
	suspend func(count int) *domain.UserLimit,
) (int, *domain.UserLimit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		count  int
		window *domain.UserLimit
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}

		row := domain.PenaltyCount{UserID: userID, Count: 1, LastUpdated: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"penalty_count": gorm.Expr("penalty_counts.penalty_count + 1"),
				"last_updated":  now,
			}),
		}).Create(&row).Error; err != nil {
			return err
		}

		var current domain.PenaltyCount
		if err := tx.Where("user_id = ?", userID).First(&current).Error; err != nil {
			return err
		}
		count = current.Count

		window = suspend(count)
		if window == nil {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"allowed", "start_date", "end_date"}),
		}).Create(window).Error
	})
	if err != nil {
		if entry != nil {
			entry.ID = 0
		}
		return 0, nil, dbErr("increment penalty", err)
	}
	return count, window, nil
}

// GetCount returns 0 for users that were never penalised.
func (r *PenaltyRepository) GetCount(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row domain.PenaltyCount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&row).Error
	if err != nil {
		return 0, dbErr("get penalty count", err)
	}
	return row.Count, nil
}

func (r *PenaltyRepository) TotalCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total int64
	err := r.db.WithContext(ctx).Model(&domain.PenaltyCount{}).
		Select("COALESCE(SUM(penalty_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, dbErr("sum penalty counts", err)
	}
	return total, nil
}

// GetLimit returns ErrNotFound when the user never had a window.
func (r *PenaltyRepository) GetLimit(ctx context.Context, userID int64) (*domain.UserLimit, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var limit domain.UserLimit
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&limit).Error; err != nil {
		return nil, dbErr("get user limit", err)
	}
	return &limit, nil
}

// ReleaseIfLapsed resets the window to the cleared shape when it has ended
// by now. It reports whether this call did the reset, so concurrent callers
// release at most once.
func (r *PenaltyRepository) ReleaseIfLapsed(ctx context.Context, userID int64, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&domain.UserLimit{}).
		Where("user_id = ? AND allowed = ? AND (end_date IS NULL OR end_date < ?)", userID, false, now).
		Updates(map[string]any{"allowed": true, "start_date": nil, "end_date": nil})
	if res.Error != nil {
		return false, dbErr("release user limit", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReleaseAllLapsed clears every window that ended before now.
func (r *PenaltyRepository) ReleaseAllLapsed(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&domain.UserLimit{}).
		Where("allowed = ? AND (end_date IS NULL OR end_date < ?)", false, now).
		Updates(map[string]any{"allowed": true, "start_date": nil, "end_date": nil})
	if res.Error != nil {
		return 0, dbErr("release lapsed limits", res.Error)
	}
	return res.RowsAffected, nil
}
