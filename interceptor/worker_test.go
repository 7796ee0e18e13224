package interceptor

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/sitecache/cache"
	"github.com/jonwraymond/sitecache/observe"
)

func TestNewWorker_Validation(t *testing.T) {
	storage := cache.NewMemoryStorage()
	f := okNetwork()

	tests := []struct {
		name    string
		cfg     Config
		storage cache.Storage
		fetcher Fetcher
		wantErr error
	}{
		{"missing version", DefaultConfig(""), storage, f, ErrMissingVersion},
		{"bad version", DefaultConfig("v1\n"), storage, f, cache.ErrInvalidName},
		{"nil storage", DefaultConfig("v1"), nil, f, ErrNilStorage},
		{"nil fetcher", DefaultConfig("v1"), storage, nil, ErrNilFetcher},
		{"relative scope", Config{Version: "v1", Scope: &url.URL{Path: "/app"}}, storage, f, ErrInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorker(tt.cfg, tt.storage, tt.fetcher)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewWorker() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorker_Lifecycle(t *testing.T) {
	w, err := NewWorker(testConfig(t, "v1"), cache.NewMemoryStorage(), okNetwork())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	ctx := context.Background()

	if _, err := w.Install(ctx); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Install before Start = %v, want ErrNotStarted", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if w.State() != StateParsed {
		t.Errorf("state = %s, want parsed", w.State())
	}

	skip, err := w.Install(ctx)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !skip {
		t.Error("default config should skip waiting")
	}
	if w.State() != StateInstalled {
		t.Errorf("state = %s, want installed", w.State())
	}

	if err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if w.State() != StateActive {
		t.Errorf("state = %s, want active", w.State())
	}

	w.Terminate()
	if w.State() != StateRedundant {
		t.Errorf("state = %s, want redundant", w.State())
	}
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker goroutine did not exit")
	}
	if _, err := w.Fetch(ctx, newRequest(t, http.MethodGet, testOrigin+"/")); !errors.Is(err, ErrNotActive) {
		t.Errorf("Fetch on redundant worker = %v, want ErrNotActive", err)
	}
	if err := w.Activate(ctx); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Activate after Terminate = %v, want ErrWorkerStopped", err)
	}
	w.Terminate()
}

func TestWorker_ActivateBeforeInstall(t *testing.T) {
	w, err := NewWorker(testConfig(t, "v1"), cache.NewMemoryStorage(), okNetwork())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Terminate()

	if err := w.Activate(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Activate = %v, want ErrInvalidState", err)
	}
	if w.State() != StateParsed {
		t.Errorf("state = %s, want parsed", w.State())
	}
}

func TestWorker_StopsWithContext(t *testing.T) {
	w, err := NewWorker(testConfig(t, "v1"), cache.NewMemoryStorage(), okNetwork())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker goroutine did not exit")
	}
	if w.State() != StateRedundant {
		t.Errorf("state = %s, want redundant", w.State())
	}
	if _, err := w.Install(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Install = %v, want ErrWorkerStopped", err)
	}
}

func TestWorker_FetchBeforeActive(t *testing.T) {
	f := okNetwork()
	w, err := NewWorker(testConfig(t, "v1"), cache.NewMemoryStorage(), f)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if _, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, testOrigin+"/")); !errors.Is(err, ErrNotActive) {
		t.Errorf("Fetch = %v, want ErrNotActive", err)
	}
	if f.Total() != 0 {
		t.Errorf("network called %d times, want 0", f.Total())
	}
}

func TestWorker_FetchMissStores(t *testing.T) {
	storage := cache.NewMemoryStorage()
	f := okNetwork()
	w := activeWorker(t, "v2", storage, f)

	resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, testOrigin+"/about"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := readBody(t, resp); got != "page /about" {
		t.Errorf("body = %q, want %q", got, "page /about")
	}

	got, ok := storedBody(t, storage, "v2", testOrigin+"/about")
	if !ok || got != "page /about" {
		t.Errorf("stored body = %q (ok=%v), want %q", got, ok, "page /about")
	}
}

func TestWorker_FetchHitSkipsNetwork(t *testing.T) {
	storage := cache.NewMemoryStorage()
	seed(t, storage, "v2", testOrigin+"/", "cached home")
	f := okNetwork()
	w := activeWorker(t, "v2", storage, f)

	req := newRequest(t, http.MethodGet, testOrigin+"/")
	resp, err := w.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := readBody(t, resp); got != "cached home" {
		t.Errorf("body = %q, want cached home", got)
	}
	if resp.Header.Get("Content-Type") != "text/html" {
		t.Errorf("stored headers not returned: %v", resp.Header)
	}
	if resp.Request != req {
		t.Error("response should reference the request it answers")
	}
	if f.Total() != 0 {
		t.Errorf("network called %d times, want 0", f.Total())
	}
}

func TestWorker_RepeatedRequestIsServedFromStore(t *testing.T) {
	storage := cache.NewMemoryStorage()
	f := okNetwork()
	w := activeWorker(t, "v1", storage, f)
	ctx := context.Background()
	target := testOrigin + "/app.js"

	for i := range 3 {
		resp, err := w.Fetch(ctx, newRequest(t, http.MethodGet, target))
		if err != nil {
			t.Fatalf("Fetch #%d: %v", i, err)
		}
		if got := readBody(t, resp); got != "page /app.js" {
			t.Errorf("Fetch #%d body = %q", i, got)
		}
	}
	if got := f.Calls(target); got != 1 {
		t.Errorf("network calls = %d, want 1", got)
	}
}

func TestWorker_FetchNotStored(t *testing.T) {
	errOffline := errors.New("offline")

	tests := []struct {
		name    string
		method  string
		target  string
		respond func(req *http.Request) (*http.Response, error)
		status  int
		wantErr error
	}{
		{
			name:   "not found",
			method: http.MethodGet,
			target: testOrigin + "/missing",
			respond: func(*http.Request) (*http.Response, error) {
				return newResponse(http.StatusNotFound, "nope", nil), nil
			},
			status: http.StatusNotFound,
		},
		{
			name:   "server error",
			method: http.MethodGet,
			target: testOrigin + "/boom",
			respond: func(*http.Request) (*http.Response, error) {
				return newResponse(http.StatusInternalServerError, "", nil), nil
			},
			status: http.StatusInternalServerError,
		},
		{
			name:   "cross-origin opaque",
			method: http.MethodGet,
			target: "https://cdn.test/lib.js",
			respond: func(*http.Request) (*http.Response, error) {
				return newResponse(http.StatusOK, "lib", nil), nil
			},
			status: http.StatusOK,
		},
		{
			name:   "cross-origin cors",
			method: http.MethodGet,
			target: "https://fonts.test/font.woff2",
			respond: func(*http.Request) (*http.Response, error) {
				return newResponse(http.StatusOK, "font", http.Header{"Access-Control-Allow-Origin": {"*"}}), nil
			},
			status: http.StatusOK,
		},
		{
			name:   "redirect",
			method: http.MethodGet,
			target: testOrigin + "/old",
			respond: func(*http.Request) (*http.Response, error) {
				return newResponse(http.StatusFound, "", http.Header{"Location": {"/new"}}), nil
			},
			status: http.StatusFound,
		},
		{
			name:   "post",
			method: http.MethodPost,
			target: testOrigin + "/form",
			respond: func(*http.Request) (*http.Response, error) {
				return newResponse(http.StatusOK, "ok", nil), nil
			},
			status: http.StatusOK,
		},
		{
			name:   "network error",
			method: http.MethodGet,
			target: testOrigin + "/offline",
			respond: func(*http.Request) (*http.Response, error) {
				return nil, errOffline
			},
			wantErr: errOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := cache.NewMemoryStorage()
			w := activeWorker(t, "v1", storage, newNetwork(tt.respond))

			resp, err := w.Fetch(context.Background(), newRequest(t, tt.method, tt.target))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fetch error = %v, want %v", err, tt.wantErr)
				}
				if resp != nil {
					t.Error("failed fetch should return no response")
				}
			} else {
				if err != nil {
					t.Fatalf("Fetch: %v", err)
				}
				if resp.StatusCode != tt.status {
					t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
				}
				resp.Body.Close()
			}

			names, _ := storage.Keys(context.Background())
			if len(names) != 0 {
				t.Errorf("stores = %v, want none", names)
			}
		})
	}
}

func TestWorker_StoreFailureIsNotSurfaced(t *testing.T) {
	var buf bytes.Buffer
	mw := observe.NewMiddleware(
		observe.NewTracer(sdktrace.NewTracerProvider().Tracer("test")),
		mustMetrics(t),
		observe.NewLoggerWithWriter("warn", &buf),
	)

	w := activeWorker(t, "v1", failingStorage{cache.NewMemoryStorage()}, okNetwork(), WithMiddleware(mw))

	resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, testOrigin+"/"))
	if err != nil {
		t.Fatalf("Fetch should succeed when the store is unavailable: %v", err)
	}
	if got := readBody(t, resp); got != "page /" {
		t.Errorf("body = %q", got)
	}
	if !strings.Contains(buf.String(), "store write failed") {
		t.Errorf("expected a store write warning, got %q", buf.String())
	}
}

func TestWorker_ActivateDeletesStaleStores(t *testing.T) {
	storage := cache.NewMemoryStorage()
	seed(t, storage, "v1", testOrigin+"/", "one")
	seed(t, storage, "legacy", testOrigin+"/", "legacy")
	seed(t, storage, "v2", testOrigin+"/", "two")

	var buf bytes.Buffer
	mw := observe.NewMiddleware(
		observe.NewTracer(sdktrace.NewTracerProvider().Tracer("test")),
		mustMetrics(t),
		observe.NewLoggerWithWriter("info", &buf),
	)
	activeWorker(t, "v2", storage, okNetwork(), WithMiddleware(mw))

	names, err := storage.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(names) != 1 || names[0] != "v2" {
		t.Errorf("stores = %v, want [v2]", names)
	}
	if got, ok := storedBody(t, storage, "v2", testOrigin+"/"); !ok || got != "two" {
		t.Errorf("current store changed: %q (ok=%v)", got, ok)
	}
	if n := strings.Count(buf.String(), "deleting old cache"); n != 2 {
		t.Errorf("logged %d deletions, want 2", n)
	}
}

func TestWorker_ActivateFailsWhenDeletionFails(t *testing.T) {
	storage := &deleteFailingStorage{MemoryStorage: cache.NewMemoryStorage()}
	seed(t, storage, "v1", testOrigin+"/", "one")

	w, err := NewWorker(testConfig(t, "v2"), storage, okNetwork())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Terminate()
	if _, err := w.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := w.Activate(ctx); !errors.Is(err, errStorageDown) {
		t.Errorf("Activate = %v, want errStorageDown", err)
	}
	if w.State() != StateRedundant {
		t.Errorf("state = %s, want redundant", w.State())
	}
}

type deleteFailingStorage struct {
	*cache.MemoryStorage
}

func (*deleteFailingStorage) Delete(context.Context, string) (bool, error) {
	return false, errStorageDown
}

func TestWorker_ActivateClaimsClients(t *testing.T) {
	clients := NewClients()
	clients.Add("tab-1", "")
	clients.Add("tab-2", "v1")

	activeWorker(t, "v2", cache.NewMemoryStorage(), okNetwork(), WithClients(clients))

	for _, id := range []string{"tab-1", "tab-2"} {
		if c, _ := clients.Controller(id); c != "v2" {
			t.Errorf("controller(%s) = %q, want v2", id, c)
		}
	}
}

func TestWorker_ConcurrentFetches(t *testing.T) {
	storage := cache.NewMemoryStorage()
	f := okNetwork()
	w := activeWorker(t, "v1", storage, f)

	reqs := make([]*http.Request, 20)
	for i := range reqs {
		reqs[i] = newRequest(t, http.MethodGet, testOrigin+"/asset/"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(reqs))
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := w.Fetch(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Fetch: %v", err)
	}

	store, err := storage.Open(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	keys, _ := store.Keys(context.Background())
	if len(keys) != len(reqs) {
		t.Errorf("stored %d entries, want %d", len(keys), len(reqs))
	}
}

func TestWorker_Instrumentation(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	var buf bytes.Buffer
	mw := observe.NewMiddleware(
		observe.NewTracer(tp.Tracer("test")),
		mustMetrics(t),
		observe.NewLoggerWithWriter("debug", &buf),
	)

	w := activeWorker(t, "v3", cache.NewMemoryStorage(), okNetwork(), WithMiddleware(mw))
	resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, testOrigin+"/"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	resp.Body.Close()

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != observe.SpanFetch {
		t.Fatalf("spans = %v, want one %s span", spans, observe.SpanFetch)
	}

	logs := buf.String()
	for _, want := range []string{`"to":"installing"`, `"to":"installed"`, `"to":"activating"`, `"to":"active"`, `"outcome":"stored"`} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %s", want)
		}
	}
}

func mustMetrics(t *testing.T) observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}
