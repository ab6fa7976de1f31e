package auth

import (
	"errors"

	"communityboard/internal/repository"
)

var (
	// ErrUnauthenticated covers every rejected access token. The concrete
	// reason is logged and counted but never returned.
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrStoreUnavailable = repository.ErrStoreUnavailable
)

// rejection reasons, used as log fields and metric labels
const (
	reasonMalformed   = "malformed"
	reasonSignature   = "signature"
	reasonKind        = "kind"
	reasonBlacklisted = "blacklisted"
	reasonExpired     = "expired"
	reasonSubject     = "subject"
	reasonNotStored   = "not_stored"
	reasonMismatch    = "mismatch"
	reasonUnknownUser = "unknown_user"
)
