package penalty

import (
	"context"
	"errors"
	"time"

	"communityboard/internal/domain"
	"communityboard/internal/pkg/metrics"
	"communityboard/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 3 * time.Minute
)

type Options struct {
	// Threshold is N: every Nth penalty opens a window.
	Threshold int
	// Duration is D, the window length.
	Duration time.Duration
	Now      func() time.Time
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Notifier Notifier
}

// Engine counts confirmed-abusive submissions and turns threshold crossings
// into write suspensions.
type Engine struct {
	repo      Repository
	logs      AbuseLogReader
	threshold int
	duration  time.Duration
	now       func() time.Time
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	notifier  Notifier
}

type Result struct {
	Count  int
	Window *domain.UserLimit
}

func NewEngine(repo Repository, logs AbuseLogReader, opts Options) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Engine{
		repo:      repo,
		logs:      logs,
		threshold: opts.Threshold,
		duration:  opts.Duration,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
	}
}

// ApplyPenalty adds one to the user's counter. When the new count is a
// multiple of the threshold a fresh window [now, now+D] replaces any earlier
// one. Callers invoke it at most once per confirmed verdict.
func (e *Engine) ApplyPenalty(ctx context.Context, p domain.Principal) (*Result, error) {
	return e.apply(ctx, p, nil)
}

// RecordAbuse stores the abuse log entry and applies one penalty atomically:
// either both are persisted or neither is.
func (e *Engine) RecordAbuse(ctx context.Context, p domain.Principal, entry *domain.AbuseLog) (*Result, error) {
	if entry == nil {
		return nil, errors.New("penalty: nil abuse log entry")
	}
	entry.UserID = p.InternalID
	return e.apply(ctx, p, entry)
}

func (e *Engine) apply(ctx context.Context, p domain.Principal, entry *domain.AbuseLog) (*Result, error) {
	now := e.now().UTC()
	if entry != nil && entry.DetectedAt.IsZero() {
		entry.DetectedAt = now
	}

	count, window, err := e.repo.Increment(ctx, p.InternalID, now, entry, func(count int) *domain.UserLimit {
		if count%e.threshold != 0 {
			return nil
		}
		end := now.Add(e.duration)
		return &domain.UserLimit{
			UserID:    p.InternalID,
			Allowed:   false,
			StartDate: &now,
			EndDate:   &end,
		}
	})
	if err != nil {
		return nil, err
	}

	e.metrics.PenaltyApplied(window != nil)
	logEntry := e.logger.WithFields(logrus.Fields{"user": p.ExternalID, "count": count})
	if window == nil {
		logEntry.Info("penalty applied")
		return &Result{Count: count}, nil
	}

	logEntry.WithField("until", window.EndDate.Format(time.RFC3339)).Warn("write suspension started")
	if e.notifier != nil {
		e.notifier.Suspended(p, *window.EndDate)
	}
	return &Result{Count: count, Window: window}, nil
}

// CheckAndGate returns *SuspendedError while the user's window is open. The
// first call after the window ended clears it and lets the write through.
func (e *Engine) CheckAndGate(ctx context.Context, p domain.Principal) error {
	limit, err := e.repo.GetLimit(ctx, p.InternalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if limit.Allowed {
		return nil
	}

	now := e.now().UTC()
	if limit.Blocking(now) {
		return &SuspendedError{Until: *limit.EndDate}
	}

	released, err := e.repo.ReleaseIfLapsed(ctx, p.InternalID, now)
	if err != nil {
		return err
	}
	if released {
		e.metrics.SuspensionReleased("gate", 1)
		e.logger.WithField("user", p.ExternalID).Info("write suspension released")
		if e.notifier != nil {
			e.notifier.Released(p)
		}
	}
	return nil
}

// Status is the effective write state: a lapsed window reports as allowed
// even before the gate has cleared it.
func (e *Engine) Status(ctx context.Context, p domain.Principal) (bool, *time.Time, error) {
	limit, err := e.repo.GetLimit(ctx, p.InternalID)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if limit.Blocking(e.now().UTC()) {
		until := *limit.EndDate
		return false, &until, nil
	}
	return true, nil, nil
}

// ReleaseLapsed clears every window that has ended, for users who have not
// written since. It makes the same transition CheckAndGate makes lazily.
func (e *Engine) ReleaseLapsed(ctx context.Context) (int64, error) {
	n, err := e.repo.ReleaseAllLapsed(ctx, e.now().UTC())
	if err != nil {
		return 0, err
	}
	e.metrics.SuspensionReleased("sweep", n)
	if n > 0 {
		e.logger.WithField("released", n).Info("lapsed write suspensions released")
	}
	return n, nil
}

func (e *Engine) GetPenaltyCount(ctx context.Context, p domain.Principal) (int, error) {
	return e.repo.GetCount(ctx, p.InternalID)
}

func (e *Engine) TotalPenaltyCount(ctx context.Context) (int64, error) {
	return e.repo.TotalCount(ctx)
}

func (e *Engine) Threshold() int { return e.threshold }
