package moderation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"communityboard/internal/pkg/jwt"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const DefaultIssuer = "purgo-skfinal"

// Envelope is a canonical request body plus the signed assertion over it.
type Envelope struct {
	Body      []byte
	Signature string
}

type envelopeClaims struct {
	Hash string `json:"hash"`
	jwtlib.RegisteredClaims
}

// Signer produces short-lived assertions that bind a request body to this
// backend. Its key is separate from the session token key.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret, issuer string, ttl time.Duration, now func() time.Time) (*Signer, error) {
	if len(secret) < jwt.MinKeyLength {
		return nil, jwt.ErrKeyTooShort
	}
	if ttl <= 0 {
		return nil, errors.New("envelope ttl must be positive")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: now}, nil
}

// BuildSignedEnvelope canonicalizes payload and signs its SHA-256 hash.
func (s *Signer) BuildSignedEnvelope(payload map[string]string) (Envelope, error) {
	body, err := CanonicalJSON(payload)
	if err != nil {
		return Envelope{}, err
	}

	now := s.now()
	claims := envelopeClaims{
		Hash: ContentHash(body),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Envelope{}, fmt.Errorf("sign envelope: %w", err)
	}
	return Envelope{Body: body, Signature: signed}, nil
}

// VerifyEnvelope is the receiving side's check: signature, issuer, expiry
// and body hash must all match.
func (s *Signer) VerifyEnvelope(body []byte, signature string) error {
	token, err := jwtlib.ParseWithClaims(signature, &envelopeClaims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	claims, ok := token.Claims.(*envelopeClaims)
	if !ok || claims.Hash != ContentHash(body) {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidEnvelope)
	}
	return nil
}

// CanonicalJSON encodes payload with sorted keys and without HTML escaping,
// so both ends hash identical bytes.
func CanonicalJSON(payload map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
