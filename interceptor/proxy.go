package interceptor

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/jonwraymond/sitecache/observe"
)

// ClientIDHeader identifies the page a request comes from.
const ClientIDHeader = "X-Client-ID"

// NewProxy returns a reverse proxy to origin whose upstream traffic goes
// through reg. Each inbound request registers its client, identified by
// ClientIDHeader or else the remote host.
func NewProxy(origin *url.URL, reg *Registration, logger observe.Logger) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
			pr.Out.Header.Del(ClientIDHeader)
		},
		Transport: NewTransport(reg),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn(r.Context(), "upstream request failed",
				observe.Field{Key: "method", Value: r.Method},
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "error", Value: err},
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.Track(ClientID(r))
		rp.ServeHTTP(w, r)
	})
}

// ClientID returns the client identifier of r.
func ClientID(r *http.Request) string {
	if id := r.Header.Get(ClientIDHeader); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
