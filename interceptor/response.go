package interceptor

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/jonwraymond/sitecache/cache"
)

// Classify reports how resp would be delivered to a page in scope. A nil
// scope treats every request as same-origin.
func Classify(scope *url.URL, req *http.Request, resp *http.Response) cache.ResponseType {
	if resp == nil {
		return cache.TypeError
	}
	if isRedirect(resp) {
		return cache.TypeOpaqueRedirect
	}
	if scope == nil || req == nil || req.URL == nil || sameOrigin(scope, req.URL) {
		return cache.TypeBasic
	}

	allowed := strings.TrimSpace(resp.Header.Get("Access-Control-Allow-Origin"))
	if allowed == "*" || strings.EqualFold(allowed, Origin(scope)) {
		return cache.TypeCORS
	}
	return cache.TypeOpaque
}

func isRedirect(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return resp.Header.Get("Location") != ""
	}
	return false
}

// Origin returns the scheme://host[:port] form of u with default ports
// elided.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host
}

func sameOrigin(a, b *url.URL) bool {
	return Origin(a) == Origin(b)
}

// ParseScope parses an absolute origin URL.
func ParseScope(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidScope
	}
	return u, nil
}
