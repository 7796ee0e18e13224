package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/jonwraymond/sitecache/cache"
)

const testOrigin = "https://site.test"

// network is a scripted Fetcher that counts calls per URL.
type network struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(req *http.Request) (*http.Response, error)
}

func newNetwork(respond func(req *http.Request) (*http.Response, error)) *network {
	return &network{calls: make(map[string]int), respond: respond}
}

// okNetwork answers every request with a 200 whose body names the URL path.
func okNetwork() *network {
	return newNetwork(func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, "page "+req.URL.Path, nil), nil
	})
}

func (n *network) Fetch(_ context.Context, req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	n.calls[req.URL.String()]++
	n.mu.Unlock()
	return n.respond(req)
}

func (n *network) Calls(rawURL string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[rawURL]
}

func (n *network) Total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

func newResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func newRequest(t *testing.T, method, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		t.Fatalf("NewRequest(%s %s): %v", method, rawURL, err)
	}
	return req
}

func testScope(t *testing.T) *url.URL {
	t.Helper()
	u, err := ParseScope(testOrigin)
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	return u
}

func testConfig(t *testing.T, version string) Config {
	t.Helper()
	cfg := DefaultConfig(version)
	cfg.Scope = testScope(t)
	return cfg
}

// activeWorker builds, starts, installs and activates a worker.
func activeWorker(t *testing.T, version string, storage cache.Storage, f Fetcher, opts ...Option) *Worker {
	t.Helper()
	w, err := NewWorker(testConfig(t, version), storage, f, opts...)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Terminate)
	if _, err := w.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return w
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

// storedBody returns the body stored for GET rawURL in the named store.
func storedBody(t *testing.T, storage cache.Storage, name, rawURL string) (string, bool) {
	t.Helper()
	ctx := context.Background()
	ok, err := storage.Has(ctx, name)
	if err != nil {
		t.Fatalf("Has(%q): %v", name, err)
	}
	if !ok {
		return "", false
	}
	store, err := storage.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	key, err := cache.NewKey(http.MethodGet, rawURL)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	entry, ok, err := store.Match(ctx, key)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !ok {
		return "", false
	}
	return string(entry.Body), true
}

func seed(t *testing.T, storage cache.Storage, name, rawURL, body string) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	key, err := cache.NewKey(http.MethodGet, rawURL)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	entry := &cache.Entry{
		Key:        key,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(body),
		Type:       cache.TypeBasic,
	}
	if err := store.Put(ctx, key, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

// failingStorage refuses to open stores.
type failingStorage struct {
	*cache.MemoryStorage
}

var errStorageDown = errors.New("storage down")

func (failingStorage) Open(context.Context, string) (cache.Store, error) {
	return nil, errStorageDown
}
