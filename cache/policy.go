package cache

import (
	"net/http"
	"slices"
	"strings"
)

// Policy decides which network responses may be stored.
type Policy struct {
	// Statuses lists the status codes eligible for storage.
	Statuses []int

	// Types lists the response types eligible for storage.
	Types []ResponseType

	// Methods lists the request methods that can be keyed.
	Methods []string
}

// DefaultPolicy stores only 200 responses of type basic for GET requests.
func DefaultPolicy() Policy {
	return Policy{
		Statuses: []int{http.StatusOK},
		Types:    []ResponseType{TypeBasic},
		Methods:  []string{http.MethodGet},
	}
}

// Cacheable reports whether resp, delivered as typ for a request with the
// given method, may be stored. A nil response is never cacheable.
func (p Policy) Cacheable(method string, resp *http.Response, typ ResponseType) bool {
	if resp == nil {
		return false
	}
	if !slices.Contains(p.Statuses, resp.StatusCode) {
		return false
	}
	if !slices.Contains(p.Types, typ) {
		return false
	}
	if method == "" {
		method = http.MethodGet
	}
	return slices.ContainsFunc(p.Methods, func(m string) bool {
		return strings.EqualFold(m, method)
	})
}
