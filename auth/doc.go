// Package auth authenticates admin API callers with HMAC-signed JWT bearer
// tokens.
//
// RequireJWT wraps an http.Handler, validates the Authorization header and
// attaches the caller's Identity to the request context. Signer issues the
// tokens operators pass to the admin API.
package auth
