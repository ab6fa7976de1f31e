package moderation

import (
	"context"
	"errors"
	"time"

	"communityboard/internal/domain"
	"communityboard/internal/modules/penalty"
	"communityboard/internal/pkg/metrics"

	"github.com/sirupsen/logrus"
)

const (
	outcomeClean           = "clean"
	outcomeAbusive         = "abusive"
	outcomeMissingDecision = "missing_decision"
	outcomeMalformed       = "malformed"
	outcomeUnavailable     = "unavailable"
)

type Checker interface {
	Check(ctx context.Context, text string) (Verdict, error)
}

// PenaltyApplier stores the abuse log entry and the penalty it earns as one
// unit.
type PenaltyApplier interface {
	RecordAbuse(ctx context.Context, p domain.Principal, entry *domain.AbuseLog) (*penalty.Result, error)
}

type FilterCounter interface {
	Incr(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Submission is user text about to be stored, with its optional target.
type Submission struct {
	Text      string
	PostID    *int64
	CommentID *int64
}

type FilterOptions struct {
	Now     func() time.Time
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Filter screens user text before it is stored. Moderation outages never
// block the write: the original text goes through unchanged.
type Filter struct {
	checker   Checker
	penalties PenaltyApplier
	counter   FilterCounter
	now       func() time.Time
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewFilter accepts a nil checker, which disables moderation.
func NewFilter(checker Checker, penalties PenaltyApplier, counter FilterCounter, opts FilterOptions) *Filter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Filter{
		checker:   checker,
		penalties: penalties,
		counter:   counter,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Screen returns the text to persist. On an abusive verdict the abuse log and
// one penalty are committed together before the rewritten text is returned.
func (f *Filter) Screen(ctx context.Context, p domain.Principal, sub Submission) (string, error) {
	if f.checker == nil {
		return sub.Text, nil
	}

	start := time.Now()
	verdict, err := f.checker.Check(ctx, sub.Text)
	took := time.Since(start)
	if err != nil {
		outcome := outcomeUnavailable
		switch {
		case errors.Is(err, ErrMissingDecision):
			outcome = outcomeMissingDecision
		case errors.Is(err, ErrMalformedVerdict):
			outcome = outcomeMalformed
		}
		f.metrics.ModerationCall(outcome, took)
		f.logger.WithFields(logrus.Fields{
			"user":    p.ExternalID,
			"outcome": outcome,
		}).WithError(err).Warn("moderation failed, passing text through")
		return sub.Text, nil
	}

	if !verdict.Abusive {
		f.metrics.ModerationCall(outcomeClean, took)
		return sub.Text, nil
	}
	f.metrics.ModerationCall(outcomeAbusive, took)

	entry := &domain.AbuseLog{
		UserID:        p.InternalID,
		PostID:        sub.PostID,
		CommentID:     sub.CommentID,
		OriginalText:  sub.Text,
		RewrittenText: verdict.RewrittenText,
		DetectedAt:    f.now().UTC(),
	}
	if _, err := f.penalties.RecordAbuse(ctx, p, entry); err != nil {
		return "", err
	}

	if f.counter != nil {
		if _, err := f.counter.Incr(ctx); err != nil {
			f.logger.WithError(err).Warn("filter counter not updated")
		}
	}
	return verdict.RewrittenText, nil
}

// FilteredCount is the number of texts rewritten so far.
func (f *Filter) FilteredCount(ctx context.Context) (int64, error) {
	if f.counter == nil {
		return 0, nil
	}
	return f.counter.Count(ctx)
}
