package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinKeyLength is the minimum accepted HMAC secret size in bytes.
const MinKeyLength = 32

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformed        = errors.New("malformed token")
	ErrUnknownKind      = errors.New("unknown token kind")
	ErrKeyTooShort      = fmt.Errorf("signing key must be at least %d bytes", MinKeyLength)
)

// Kind tells access tokens apart from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) valid() bool {
	return k == KindAccess || k == KindRefresh
}

// KeyMaterial is an immutable HMAC secret. Build it once at startup and hand
// it to every Codec that needs it.
type KeyMaterial struct {
	secret []byte
}

func NewKeyMaterial(secret string) (KeyMaterial, error) {
	if len(secret) < MinKeyLength {
		return KeyMaterial{}, ErrKeyTooShort
	}
	buf := make([]byte, len(secret))
	copy(buf, secret)
	return KeyMaterial{secret: buf}, nil
}

// Extra holds the kind-specific claims. Access tokens carry the display name
// and contact address for the client; refresh tokens leave both empty.
type Extra struct {
	DisplayName string
	Contact     string
}

type Claims struct {
	Kind        Kind   `json:"tokenType"`
	DisplayName string `json:"username,omitempty"`
	Contact     string `json:"email,omitempty"`
	jwtlib.RegisteredClaims
}

// Expired reports whether the token is past its expiry. The boundary instant
// counts as expired.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !now.Before(c.ExpiresAt.Time)
}

// Remaining returns how long the token stays valid after now.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Codec signs and verifies session tokens. It performs no I/O.
type Codec struct {
	key KeyMaterial
	now func() time.Time
}

func New(key KeyMaterial) *Codec {
	return NewWithClock(key, time.Now)
}

func NewWithClock(key KeyMaterial, now func() time.Time) *Codec {
	return &Codec{key: key, now: now}
}

func (c *Codec) Issue(kind Kind, subject string, extra Extra, ttl time.Duration) (string, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	if ttl < 0 {
		return "", errors.New("ttl must not be negative")
	}

	now := c.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if kind == KindAccess {
		claims.DisplayName = extra.DisplayName
		claims.Contact = extra.Contact
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and decodes the claims. Expiry is left to the
// caller; see Claims.Expired.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return c.key.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenSignatureInvalid) || errors.Is(err, jwtlib.ErrTokenUnverifiable) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if !claims.Kind.valid() || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) ExtractSubject(tokenStr string) (string, error) {
	claims, err := c.Verify(tokenStr)
	if err != nil {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}

func (c *Codec) ExtractKind(tokenStr string) (Kind, error) {
	claims, err := c.Verify(tokenStr)
	if err != nil {
		return "", ErrMalformed
	}
	return claims.Kind, nil
}
