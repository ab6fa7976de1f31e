package domain

import "time"

// PenaltyCount is the monotonic per-user abuse counter.
type PenaltyCount struct {
	UserID      int64     `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Count       int       `json:"penalty_count" gorm:"column:penalty_count;not null"`
	LastUpdated time.Time `json:"last_updated" gorm:"column:last_updated;not null"`
}

func (PenaltyCount) TableName() string { return "penalty_counts" }

// UserLimit is the suspension window. Allowed=true with nil bounds is the
// cleared shape; Allowed=false with EndDate set blocks writes until EndDate.
type UserLimit struct {
	UserID    int64      `json:"user_id" gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Allowed   bool       `json:"allowed" gorm:"column:allowed;not null"`
	StartDate *time.Time `json:"start_date" gorm:"column:start_date"`
	EndDate   *time.Time `json:"end_date" gorm:"column:end_date;index"`
}

func (UserLimit) TableName() string { return "user_limits" }

// Blocking reports whether the window still rejects writes at now.
func (l *UserLimit) Blocking(now time.Time) bool {
	if l == nil || l.Allowed || l.EndDate == nil {
		return false
	}
	return !now.After(*l.EndDate)
}

// AbuseLog is an append-only record of a confirmed-abusive submission.
type AbuseLog struct {
	ID            int64     `json:"id" gorm:"column:log_id;primaryKey"`
	UserID        int64     `json:"user_id" gorm:"column:user_id;index;not null"`
	PostID        *int64    `json:"post_id,omitempty" gorm:"column:post_id"`
	CommentID     *int64    `json:"comment_id,omitempty" gorm:"column:comment_id"`
	OriginalText  string    `json:"original_word" gorm:"column:original_word;not null"`
	RewrittenText string    `json:"filtered_word" gorm:"column:filtered_word;not null"`
	DetectedAt    time.Time `json:"detected_at" gorm:"column:detected_at;index;not null"`
}

func (AbuseLog) TableName() string { return "abuse_logs" }
