package board

import (
	"context"

	"communityboard/internal/domain"
	"communityboard/internal/modules/moderation"
)

type Gate interface {
	CheckAndGate(ctx context.Context, p domain.Principal) error
}

type Screener interface {
	Screen(ctx context.Context, p domain.Principal, sub moderation.Submission) (string, error)
}

// Service prepares user text for the post and comment store.
type Service struct {
	gate     Gate
	screener Screener
}

func NewService(gate Gate, screener Screener) *Service {
	return &Service{gate: gate, screener: screener}
}

// PrepareWrite rejects suspended users, then returns the text the store
// should persist: the original, or the moderation rewrite when abusive.
func (s *Service) PrepareWrite(ctx context.Context, p domain.Principal, sub moderation.Submission) (string, error) {
	if err := s.gate.CheckAndGate(ctx, p); err != nil {
		return "", err
	}
	return s.screener.Screen(ctx, p, sub)
}
