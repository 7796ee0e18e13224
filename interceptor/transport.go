package interceptor

import (
	"errors"
	"net/http"
)

// Transport is an http.RoundTripper that routes requests through the
// registration's active worker. With no active worker the page is
// uncontrolled and requests go straight to the network.
type Transport struct {
	Registration *Registration
}

// NewTransport creates a transport for reg.
func NewTransport(reg *Registration) *Transport {
	return &Transport{Registration: reg}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if w := t.Registration.Active(); w != nil {
		resp, err := w.Fetch(ctx, req)
		if !errors.Is(err, ErrNotActive) {
			return checkResponse(resp, err)
		}
	}
	return checkResponse(t.Registration.Fetcher().Fetch(ctx, req))
}

func checkResponse(resp *http.Response, err error) (*http.Response, error) {
	if err == nil && resp == nil {
		return nil, ErrNoResponse
	}
	return resp, err
}

// Ensure Transport implements http.RoundTripper
var _ http.RoundTripper = (*Transport)(nil)
