package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/sitecache/observe"
)

// AdminRole is the role required by the admin API.
const AdminRole = "admin"

type requireConfig struct {
	role   string
	logger observe.Logger
}

// RequireOption configures RequireJWT.
type RequireOption func(*requireConfig)

// WithRole rejects authenticated callers lacking role with 403.
func WithRole(role string) RequireOption {
	return func(c *requireConfig) { c.role = role }
}

// WithLogger logs rejected requests.
func WithLogger(logger observe.Logger) RequireOption {
	return func(c *requireConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RequireJWT is HTTP middleware that admits only requests authenticated by
// authn. The caller's Identity is attached to the request context.
func RequireJWT(authn Authenticator, opts ...RequireOption) func(http.Handler) http.Handler {
	cfg := requireConfig{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result, err := authn.Authenticate(ctx, r.Header)
			if err != nil {
				cfg.logger.Error(ctx, "authentication error", observe.Field{Key: "error", Value: err})
				writeAuthError(w, http.StatusInternalServerError, err)
				return
			}
			if !result.Authenticated {
				cfg.logger.Warn(ctx, "authentication failed",
					observe.Field{Key: "path", Value: r.URL.Path},
					observe.Field{Key: "error", Value: result.Error},
				)
				w.Header().Set("WWW-Authenticate", challenge(result.Error))
				writeAuthError(w, http.StatusUnauthorized, result.Error)
				return
			}
			if cfg.role != "" && !result.Identity.HasRole(cfg.role) {
				cfg.logger.Warn(ctx, "authorization failed",
					observe.Field{Key: "principal", Value: result.Identity.Principal},
					observe.Field{Key: "role", Value: cfg.role},
				)
				writeAuthError(w, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, result.Identity)))
		})
	}
}

func challenge(err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return `Bearer realm="sitecache"`
	}
	return `Bearer realm="sitecache", error="invalid_token"`
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
