package interceptor

import (
	"context"
	"net/http"
)

// Fetcher performs network requests on behalf of the interceptor.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: a failed fetch returns (nil, err); the error is surfaced unchanged.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// NetworkFetcher fetches over HTTP without following redirects, so a
// redirect reaches the interceptor as an opaque redirect.
type NetworkFetcher struct {
	client *http.Client
}

// NewNetworkFetcher creates a fetcher on rt. A nil rt means
// http.DefaultTransport.
func NewNetworkFetcher(rt http.RoundTripper) *NetworkFetcher {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &NetworkFetcher{
		client: &http.Client{
			Transport: rt,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Fetch sends req. Content negotiation for compression is left to the
// underlying transport so stored bodies are always identity-encoded.
func (f *NetworkFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.Header.Del("Accept-Encoding")
	return f.client.Do(out)
}

// Ensure NetworkFetcher implements Fetcher
var _ Fetcher = (*NetworkFetcher)(nil)
