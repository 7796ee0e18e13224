package interceptor

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jonwraymond/sitecache/cache"
)

func newTestRegistration(t *testing.T, base Config, storage cache.Storage, f Fetcher, opts ...RegistrationOption) *Registration {
	t.Helper()
	reg, err := NewRegistration(context.Background(), base, storage, f, nil, opts...)
	if err != nil {
		t.Fatalf("NewRegistration: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestNewRegistration_Validation(t *testing.T) {
	if _, err := NewRegistration(context.Background(), Config{}, nil, okNetwork(), nil); !errors.Is(err, ErrNilStorage) {
		t.Errorf("nil storage: got %v", err)
	}
	if _, err := NewRegistration(context.Background(), Config{}, cache.NewMemoryStorage(), nil, nil); !errors.Is(err, ErrNilFetcher) {
		t.Errorf("nil fetcher: got %v", err)
	}
}

func TestRegistration_VersionBump(t *testing.T) {
	storage := cache.NewMemoryStorage()
	f := okNetwork()
	reg := newTestRegistration(t, testConfig(t, ""), storage, f)
	ctx := context.Background()
	home := testOrigin + "/"

	v1, err := reg.Update(ctx, "v1")
	if err != nil {
		t.Fatalf("Update(v1): %v", err)
	}
	resp, err := NewTransport(reg).RoundTrip(newRequest(t, http.MethodGet, home))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if _, ok := storedBody(t, storage, "v1", home); !ok {
		t.Fatal("home page should be stored under v1")
	}

	v2, err := reg.Update(ctx, "v2")
	if err != nil {
		t.Fatalf("Update(v2): %v", err)
	}
	if v1.State() != StateRedundant {
		t.Errorf("v1 state = %s, want redundant", v1.State())
	}
	if reg.Active() != v2 || v2.State() != StateActive {
		t.Fatalf("active = %v, want v2 active", reg.Active())
	}

	names, _ := storage.Keys(ctx)
	if len(names) != 0 {
		t.Errorf("stores after activation = %v, want none until first write", names)
	}

	resp, err = NewTransport(reg).RoundTrip(newRequest(t, http.MethodGet, home))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if got := f.Calls(home); got != 2 {
		t.Errorf("network calls = %d, want 2 (re-fetched under v2)", got)
	}
	names, _ = storage.Keys(ctx)
	if len(names) != 1 || names[0] != "v2" {
		t.Errorf("stores = %v, want [v2]", names)
	}
}

func TestRegistration_SameVersion(t *testing.T) {
	reg := newTestRegistration(t, testConfig(t, ""), cache.NewMemoryStorage(), okNetwork())
	ctx := context.Background()

	if _, err := reg.Update(ctx, "v1"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := reg.Update(ctx, "v1"); !errors.Is(err, ErrSameVersion) {
		t.Errorf("second Update = %v, want ErrSameVersion", err)
	}
	if _, err := reg.Update(ctx, ""); !errors.Is(err, ErrMissingVersion) {
		t.Errorf("empty version = %v, want ErrMissingVersion", err)
	}
}

func TestRegistration_WaitsForClients(t *testing.T) {
	base := testConfig(t, "")
	base.SkipWaiting = false
	storage := cache.NewMemoryStorage()
	reg := newTestRegistration(t, base, storage, okNetwork())
	ctx := context.Background()

	v1, err := reg.Update(ctx, "v1")
	if err != nil {
		t.Fatalf("Update(v1): %v", err)
	}
	if v1.State() != StateActive {
		t.Fatalf("first worker should activate with nothing to wait for, state = %s", v1.State())
	}
	if c := reg.Track("tab"); c.Controller != "v1" {
		t.Errorf("new client controller = %q, want v1", c.Controller)
	}
	seed(t, storage, "v1", testOrigin+"/", "one")

	v2, err := reg.Update(ctx, "v2")
	if err != nil {
		t.Fatalf("Update(v2): %v", err)
	}
	if v2.State() != StateInstalled {
		t.Errorf("v2 state = %s, want installed", v2.State())
	}
	st := reg.Status()
	if st.Active != "v1" || st.Waiting != "v2" || st.Clients != 1 || st.Controlled != 1 {
		t.Errorf("Status() = %+v", st)
	}
	if ok, _ := storage.Has(ctx, "v1"); !ok {
		t.Error("v1 store must survive while v1 controls a client")
	}

	if err := reg.ReleaseClient(ctx, "tab"); err != nil {
		t.Fatalf("ReleaseClient: %v", err)
	}
	if reg.Active() != v2 || v2.State() != StateActive {
		t.Errorf("v2 should be promoted, active = %v", reg.Active())
	}
	if v1.State() != StateRedundant {
		t.Errorf("v1 state = %s, want redundant", v1.State())
	}
	if reg.Waiting() != nil {
		t.Error("waiting slot should be empty")
	}
	if ok, _ := storage.Has(ctx, "v1"); ok {
		t.Error("v1 store should be deleted on v2 activation")
	}
}

func TestRegistration_NewerWaitingReplacesOlder(t *testing.T) {
	base := testConfig(t, "")
	base.SkipWaiting = false
	reg := newTestRegistration(t, base, cache.NewMemoryStorage(), okNetwork())
	ctx := context.Background()

	if _, err := reg.Update(ctx, "v1"); err != nil {
		t.Fatalf("Update(v1): %v", err)
	}
	reg.Track("tab")

	v2, err := reg.Update(ctx, "v2")
	if err != nil {
		t.Fatalf("Update(v2): %v", err)
	}
	v3, err := reg.Update(ctx, "v3")
	if err != nil {
		t.Fatalf("Update(v3): %v", err)
	}
	if v2.State() != StateRedundant {
		t.Errorf("replaced waiting worker state = %s, want redundant", v2.State())
	}
	if reg.Waiting() != v3 {
		t.Error("v3 should be waiting")
	}
}

func TestRegistration_TrackAfterClaim(t *testing.T) {
	reg := newTestRegistration(t, testConfig(t, ""), cache.NewMemoryStorage(), okNetwork())

	if c := reg.Track("early"); c.Controller != "" {
		t.Errorf("client before any worker should be uncontrolled, got %q", c.Controller)
	}
	if _, err := reg.Update(context.Background(), "v1"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c, _ := reg.Clients().Controller("early"); c != "v1" {
		t.Errorf("activation should claim existing clients, controller = %q", c)
	}
}

func TestRegistration_Close(t *testing.T) {
	reg, err := NewRegistration(context.Background(), testConfig(t, ""), cache.NewMemoryStorage(), okNetwork(), nil)
	if err != nil {
		t.Fatalf("NewRegistration: %v", err)
	}
	w, err := reg.Update(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.State() != StateRedundant {
		t.Errorf("state = %s, want redundant", w.State())
	}
	if reg.Active() != nil {
		t.Error("no worker should be active after Close")
	}
	if _, err := reg.Update(context.Background(), "v2"); !errors.Is(err, ErrRegistrationDone) {
		t.Errorf("Update after Close = %v, want ErrRegistrationDone", err)
	}
	if err := reg.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
