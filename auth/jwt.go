package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ValidMethods lists the accepted signing algorithms.
var ValidMethods = []string{"HS256", "HS384", "HS512"}

// Claims is the token payload issued and accepted by this package.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Issuer is the expected token issuer (iss claim). Empty skips the check.
	Issuer string

	// Audience is the expected token audience (aud claim). Empty skips the
	// check.
	Audience string

	// Leeway tolerates clock skew when checking exp, nbf and iat.
	Leeway time.Duration
}

// JWTAuthenticator validates HMAC-signed bearer tokens.
type JWTAuthenticator struct {
	config JWTConfig
	key    []byte
}

// NewJWTAuthenticator creates a new JWT authenticator for key.
func NewJWTAuthenticator(config JWTConfig, key []byte) (*JWTAuthenticator, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	return &JWTAuthenticator{config: config, key: key}, nil
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}

// Authenticate validates the bearer token in the Authorization header.
func (a *JWTAuthenticator) Authenticate(_ context.Context, header http.Header) (*AuthResult, error) {
	tokenString, ok := bearerToken(header.Get("Authorization"))
	if !ok {
		return AuthFailure(ErrMissingCredentials), nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(ValidMethods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.config.Audience))
	}
	if a.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(a.config.Leeway))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return AuthFailure(ErrTokenExpired), nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return AuthFailure(ErrTokenMalformed), nil
	case err != nil, !token.Valid:
		return AuthFailure(ErrInvalidCredentials), nil
	}

	return AuthSuccess(buildIdentity(&claims)), nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func buildIdentity(claims *Claims) *Identity {
	identity := &Identity{
		Principal: claims.Subject,
		Roles:     claims.Roles,
		Method:    AuthMethodJWT,
		Claims: map[string]any{
			"iss": claims.Issuer,
			"sub": claims.Subject,
			"jti": claims.ID,
		},
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	return identity
}

// Ensure JWTAuthenticator implements Authenticator
var _ Authenticator = (*JWTAuthenticator)(nil)
