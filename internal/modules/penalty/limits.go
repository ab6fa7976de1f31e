package penalty

import (
	"context"
	"time"

	"communityboard/internal/domain"
)

// LimitInfo is the read-only view of a user's suspension state.
type LimitInfo struct {
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	Allowed   bool       `json:"allowed"`
	Groups    []LogGroup `json:"logGroups"`
}

// LogGroup is one full batch of Threshold abuse logs, which is exactly the
// set of submissions that opened one window.
type LogGroup struct {
	Index     int               `json:"index"`
	StartDate time.Time         `json:"startDate"`
	EndDate   time.Time         `json:"endDate"`
	Active    bool              `json:"active"`
	Logs      []domain.AbuseLog `json:"logs"`
}

func (e *Engine) GetLimitInfo(ctx context.Context, p domain.Principal) (*LimitInfo, error) {
	allowed, _, err := e.Status(ctx, p)
	if err != nil {
		return nil, err
	}

	info := &LimitInfo{Allowed: allowed, Groups: []LogGroup{}}
	var current *domain.UserLimit
	if !allowed {
		current, err = e.repo.GetLimit(ctx, p.InternalID)
		if err != nil {
			return nil, err
		}
		info.StartDate = current.StartDate
		info.EndDate = current.EndDate
	}

	logs, err := e.logs.ListByUser(ctx, p.InternalID)
	if err != nil {
		return nil, err
	}
	info.Groups = groupLogs(logs, e.threshold, e.duration, current)
	return info, nil
}

// groupLogs splits logs into full batches of size n; a trailing partial batch
// has not opened a window and is left out. Each batch's window starts at its
// last log. The newest batch takes the bounds of the open window, if any.
func groupLogs(logs []domain.AbuseLog, n int, d time.Duration, open *domain.UserLimit) []LogGroup {
	groups := make([]LogGroup, 0, len(logs)/n)
	for i := 0; i+n <= len(logs); i += n {
		batch := logs[i : i+n]
		start := batch[n-1].DetectedAt
		groups = append(groups, LogGroup{
			Index:     len(groups),
			StartDate: start,
			EndDate:   start.Add(d),
			Logs:      batch,
		})
	}

	if len(groups) > 0 && open != nil && open.StartDate != nil && open.EndDate != nil {
		last := &groups[len(groups)-1]
		last.StartDate = *open.StartDate
		last.EndDate = *open.EndDate
		last.Active = true
	}
	return groups
}
