package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidTTL is returned when a token lifetime is not positive.
var ErrInvalidTTL = errors.New("auth: token lifetime must be positive")

// Signer issues HS256 tokens accepted by a JWTAuthenticator with the same
// key, issuer and audience.
type Signer struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewSigner creates a signer. Issuer and audience may be empty.
func NewSigner(key []byte, issuer, audience string) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	return &Signer{key: key, issuer: issuer, audience: audience, now: time.Now}, nil
}

// Issue signs a token for subject carrying roles that expires after ttl.
func (s *Signer) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	now := s.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
