package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Key identifies a stored response by request method and absolute URL.
type Key struct {
	Method string
	URL    string
}

// NewKey builds a normalized key. The method is upper-cased (empty means GET)
// and the URL must be absolute; its fragment is dropped.
func NewKey(method, rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return keyFromURL(method, u)
}

func keyFromURL(method string, u *url.URL) (Key, error) {
	if u == nil || !u.IsAbs() || u.Host == "" {
		return Key{}, fmt.Errorf("%w: url must be absolute", ErrInvalidKey)
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	norm := *u
	norm.Fragment = ""
	norm.RawFragment = ""
	norm.Scheme = strings.ToLower(norm.Scheme)
	norm.Host = strings.ToLower(norm.Host)
	if norm.Path == "" {
		norm.Path = "/"
	}
	return Key{Method: method, URL: norm.String()}, nil
}

// String returns "<METHOD> <URL>".
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Digest returns the hex SHA-256 of the key, suitable as a row identifier.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Keyer derives cache keys from requests.
//
// Contract:
// - Determinism: the same request must always produce the same key.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(req *http.Request) (Key, error)
}

// DefaultKeyer keys requests by method and full URL.
type DefaultKeyer struct {
	// IgnoreSearch drops the query string before keying.
	IgnoreSearch bool
}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates the key for req.
func (k *DefaultKeyer) Key(req *http.Request) (Key, error) {
	if req == nil || req.URL == nil {
		return Key{}, fmt.Errorf("%w: request has no url", ErrInvalidKey)
	}
	u := *req.URL
	if k.IgnoreSearch {
		u.RawQuery = ""
		u.ForceQuery = false
	}
	return keyFromURL(req.Method, &u)
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
