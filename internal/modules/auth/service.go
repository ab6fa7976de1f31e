package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"communityboard/internal/domain"
	"communityboard/internal/pkg/jwt"
	"communityboard/internal/pkg/metrics"
	"communityboard/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const bearerPrefix = "Bearer "

var (
	compareHashAndPassword = bcrypt.CompareHashAndPassword

	unknownUserHashOnce sync.Once
	unknownUserHashVal  []byte
)

// unknownUserHash is what Login compares against when the id does not exist,
// so a missing user costs the same bcrypt work as a wrong password.
func unknownUserHash() []byte {
	unknownUserHashOnce.Do(func() {
		unknownUserHashVal, _ = bcrypt.GenerateFromPassword([]byte("unknown-user"), bcrypt.DefaultCost)
	})
	return unknownUserHashVal
}

// Service issues, validates and revokes session tokens. Token state lives in
// two places: the signed token itself and its revocation record in the store.
type Service struct {
	codec      *jwt.Codec
	store      RevocationStore
	users      UserReader
	suspension SuspensionReader
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *logrus.Logger
	metrics    *metrics.Metrics
}

type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	Logger     *logrus.Logger
	Metrics    *metrics.Metrics
}

type LoginResult struct {
	Principal    domain.Principal
	AccessToken  string
	RefreshToken string
	Allowed      bool
	Until        *time.Time
}

func NewService(
	codec *jwt.Codec,
	store RevocationStore,
	users UserReader,
	suspension SuspensionReader,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		codec:      codec,
		store:      store,
		users:      users,
		suspension: suspension,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Now,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

func (s *Service) IssueAccessToken(p domain.Principal) (string, error) {
	token, err := s.codec.Issue(jwt.KindAccess, p.ExternalID, jwt.Extra{
		DisplayName: p.DisplayName,
		Contact:     p.Contact,
	}, s.accessTTL)
	if err != nil {
		return "", err
	}
	s.metrics.TokenIssued(string(jwt.KindAccess))
	return token, nil
}

// IssueRefreshToken signs a refresh token and stores it as the principal's
// only live one. A token that could not be stored is never returned.
func (s *Service) IssueRefreshToken(ctx context.Context, p domain.Principal) (string, error) {
	token, err := s.codec.Issue(jwt.KindRefresh, p.ExternalID, jwt.Extra{}, s.refreshTTL)
	if err != nil {
		return "", err
	}
	if err := s.store.SetRefresh(ctx, p.ExternalID, token, s.refreshTTL); err != nil {
		return "", err
	}
	s.metrics.TokenIssued(string(jwt.KindRefresh))
	return token, nil
}

// ValidateAccessToken reports whether token is a live access token for
// expectedSubject. The error is non-nil only when the store could not be
// consulted.
func (s *Service) ValidateAccessToken(ctx context.Context, token, expectedSubject string) (bool, error) {
	_, reason, err := s.checkAccess(ctx, token, &expectedSubject)
	if err != nil {
		return false, err
	}
	if reason != "" {
		s.reject(reason, expectedSubject)
		return false, nil
	}
	return true, nil
}

// checkAccess runs signature, kind, blacklist, expiry and subject checks in
// that order. A nil expectedSubject skips the last one.
func (s *Service) checkAccess(ctx context.Context, token string, expectedSubject *string) (*jwt.Claims, string, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidSignature) {
			return nil, reasonSignature, nil
		}
		return nil, reasonMalformed, nil
	}
	if claims.Kind != jwt.KindAccess {
		return nil, reasonKind, nil
	}

	blacklisted, err := s.store.IsBlacklisted(ctx, claims.Subject, token)
	if err != nil {
		return nil, "", err
	}
	if blacklisted {
		return nil, reasonBlacklisted, nil
	}
	if claims.Expired(s.now()) {
		return nil, reasonExpired, nil
	}
	if expectedSubject != nil && claims.Subject != *expectedSubject {
		return nil, reasonSubject, nil
	}
	return claims, "", nil
}

// ValidateRefreshToken accepts only the most recently issued refresh token
// of claimedPrincipal.
func (s *Service) ValidateRefreshToken(ctx context.Context, token, claimedPrincipal string) (bool, error) {
	reason, err := s.checkRefresh(ctx, token, claimedPrincipal)
	if err != nil {
		return false, err
	}
	if reason != "" {
		s.reject(reason, claimedPrincipal)
		return false, nil
	}
	return true, nil
}

func (s *Service) checkRefresh(ctx context.Context, token, claimedPrincipal string) (string, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidSignature) {
			return reasonSignature, nil
		}
		return reasonMalformed, nil
	}
	if claims.Kind != jwt.KindRefresh {
		return reasonKind, nil
	}
	if claims.Subject != claimedPrincipal {
		return reasonSubject, nil
	}
	if claims.Expired(s.now()) {
		return reasonExpired, nil
	}

	stored, ok, err := s.store.GetRefresh(ctx, claimedPrincipal)
	if err != nil {
		return "", err
	}
	if !ok {
		return reasonNotStored, nil
	}
	if stored != token {
		return reasonMismatch, nil
	}
	return "", nil
}

// ReissueAccessToken is called after ValidateRefreshToken succeeded. The
// refresh token stays valid for its full TTL.
func (s *Service) ReissueAccessToken(p domain.Principal) (string, error) {
	return s.IssueAccessToken(p)
}

// Logout drops the live refresh token and blacklists accessToken for the
// rest of its lifetime. An already expired token is not blacklisted.
func (s *Service) Logout(ctx context.Context, p domain.Principal, accessToken string) error {
	if err := s.store.DeleteRefresh(ctx, p.ExternalID); err != nil {
		return err
	}

	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return nil
	}
	remaining := claims.Remaining(s.now())
	if remaining <= 0 {
		return nil
	}
	return s.store.BlacklistAccess(ctx, p.ExternalID, accessToken, remaining)
}

// Authenticate resolves a "Bearer <token>" header to its principal.
func (s *Service) Authenticate(ctx context.Context, header string) (domain.Principal, string, error) {
	token, ok := parseBearer(header)
	if !ok {
		s.reject(reasonMalformed, "")
		return domain.Principal{}, "", ErrUnauthenticated
	}

	claims, reason, err := s.checkAccess(ctx, token, nil)
	if err != nil {
		return domain.Principal{}, "", err
	}
	if reason != "" {
		s.reject(reason, "")
		return domain.Principal{}, "", ErrUnauthenticated
	}

	p, err := s.lookup(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reject(reasonUnknownUser, claims.Subject)
			return domain.Principal{}, "", ErrUnauthenticated
		}
		return domain.Principal{}, "", err
	}
	return p, token, nil
}

// Refresh trades a live refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (string, error) {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	subject, err := s.codec.ExtractSubject(rawRefreshToken)
	if err != nil {
		s.reject(reasonMalformed, "")
		return "", ErrInvalidRefresh
	}

	p, err := s.lookup(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reject(reasonUnknownUser, subject)
			return "", ErrInvalidRefresh
		}
		return "", err
	}

	ok, err := s.ValidateRefreshToken(ctx, rawRefreshToken, p.ExternalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidRefresh
	}
	return s.ReissueAccessToken(p)
}

// LogoutRaw authenticates the header and revokes the session behind it.
func (s *Service) LogoutRaw(ctx context.Context, header string) error {
	p, token, err := s.Authenticate(ctx, header)
	if err != nil {
		return err
	}
	return s.Logout(ctx, p, token)
}

// Login checks the password and opens a new session. Any earlier refresh
// token of the user stops working.
func (s *Service) Login(ctx context.Context, id, password string) (*LoginResult, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = compareHashAndPassword(unknownUserHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := compareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WithField("user", user.ID).Info("login rejected: bad password")
		return nil, ErrInvalidCredentials
	}

	p := user.Principal()
	refresh, err := s.IssueRefreshToken(ctx, p)
	if err != nil {
		return nil, err
	}
	access, err := s.IssueAccessToken(p)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{Principal: p, AccessToken: access, RefreshToken: refresh, Allowed: true}
	if s.suspension != nil {
		allowed, until, err := s.suspension.Status(ctx, p)
		if err != nil {
			return nil, err
		}
		result.Allowed = allowed
		result.Until = until
	}
	return result, nil
}

func (s *Service) lookup(ctx context.Context, subject string) (domain.Principal, error) {
	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		return domain.Principal{}, err
	}
	return user.Principal(), nil
}

func (s *Service) reject(reason, subject string) {
	s.metrics.AuthRejected(reason)
	entry := s.logger.WithField("reason", reason)
	if subject != "" {
		entry = entry.WithField("subject", subject)
	}
	entry.Info("token rejected")
}

func parseBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
