package moderation

import "errors"

var (
	// ErrModerationUnavailable covers timeouts, transport errors and non-200
	// answers. Callers fail open on it.
	ErrModerationUnavailable = errors.New("moderation unavailable")
	ErrMissingDecision       = errors.New("moderation response has no final_decision")
	ErrMalformedVerdict      = errors.New("malformed moderation response")
	ErrInvalidEnvelope       = errors.New("invalid request envelope")
)
