package interceptor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/sitecache/cache"
	"github.com/jonwraymond/sitecache/observe"
)

// Status is a snapshot of a registration.
type Status struct {
	Active      string `json:"active,omitempty"`
	ActiveState string `json:"active_state,omitempty"`
	Waiting     string `json:"waiting,omitempty"`
	Clients     int    `json:"clients"`
	Controlled  int    `json:"controlled"`
}

// Client lifetime defaults for a Registration.
const (
	DefaultClientTTL  = 30 * time.Minute
	DefaultMaxClients = 10000
)

// RegistrationOption configures a Registration.
type RegistrationOption func(*Registration)

// WithClientTTL forgets clients not seen for ttl. Zero or less keeps clients
// until they are released.
func WithClientTTL(ttl time.Duration) RegistrationOption {
	return func(r *Registration) { r.ttl = ttl }
}

// WithMaxClients bounds the client set. Zero or less means unbounded.
func WithMaxClients(n int) RegistrationOption {
	return func(r *Registration) { r.maxClients = n }
}

// WithSweepInterval sets how often expired clients are swept. It defaults to
// half the client TTL.
func WithSweepInterval(d time.Duration) RegistrationOption {
	return func(r *Registration) { r.sweepEvery = d }
}

// Registration owns the workers for one scope. At most one worker is active
// and at most one is waiting.
//
// Contract:
//   - Concurrency: safe for concurrent use. Updates are serialized.
//   - An updated worker whose SkipWaiting is false waits until no client is
//     controlled by the active worker.
//   - Clients expire after the client TTL. A sweeper running until Close
//     forgets them and activates a waiting worker once the active one
//     controls no client.
type Registration struct {
	base    Config
	storage cache.Storage
	fetcher Fetcher
	obs     *observe.Middleware
	clients *Clients

	ttl        time.Duration
	maxClients int
	sweepEvery time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	active  *Worker
	waiting *Worker
	closed  bool
}

// NewRegistration creates a registration whose workers share storage,
// fetcher and a client set. base supplies every field except Version.
// Workers live until ctx is cancelled or Close is called.
func NewRegistration(
	ctx context.Context,
	base Config,
	storage cache.Storage,
	fetcher Fetcher,
	mw *observe.Middleware,
	opts ...RegistrationOption,
) (*Registration, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if mw == nil {
		mw = observe.NopMiddleware()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &Registration{
		base:       base,
		storage:    storage,
		fetcher:    fetcher,
		obs:        mw,
		ttl:        DefaultClientTTL,
		maxClients: DefaultMaxClients,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.clients = NewBoundedClients(r.maxClients)

	if r.ttl > 0 {
		if r.sweepEvery <= 0 {
			r.sweepEvery = r.ttl / 2
		}
		go r.sweepLoop()
	}
	return r, nil
}

func (r *Registration) sweepLoop() {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := r.Sweep(r.ctx, now); err != nil {
				r.obs.Logger().Warn(r.ctx, "client sweep failed", observe.Field{Key: "error", Value: err})
			}
		}
	}
}

// Sweep forgets clients not seen since now minus the client TTL, then
// activates the waiting worker when the active one controls no client. It
// returns how many clients expired.
func (r *Registration) Sweep(ctx context.Context, now time.Time) (int, error) {
	var expired []Client
	if r.ttl > 0 {
		expired = r.clients.Expire(now.Add(-r.ttl))
	}
	if len(expired) > 0 {
		r.obs.Logger().Debug(ctx, "clients expired", observe.Field{Key: "clients", Value: len(expired)})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(expired), r.promoteWaiting(ctx)
}

// Clients returns the registration's client set.
func (r *Registration) Clients() *Clients { return r.clients }

// Fetcher returns the network fetcher shared by the registration's workers.
func (r *Registration) Fetcher() Fetcher { return r.fetcher }

// Storage returns the storage shared by the registration's workers.
func (r *Registration) Storage() cache.Storage { return r.storage }

// Update installs a worker for version. The worker is activated at once when
// it skips waiting, when nothing is active, or when no client is controlled
// by the active worker. Otherwise it becomes the waiting worker, replacing
// any previous one.
func (r *Registration) Update(ctx context.Context, version string) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistrationDone
	}
	if r.active != nil && r.active.Version() == version {
		return nil, fmt.Errorf("%w: %s", ErrSameVersion, version)
	}
	if r.waiting != nil && r.waiting.Version() == version {
		return nil, fmt.Errorf("%w: %s is waiting", ErrSameVersion, version)
	}

	cfg := r.base
	cfg.Version = version
	w, err := NewWorker(cfg, r.storage, r.fetcher, WithMiddleware(r.obs), WithClients(r.clients))
	if err != nil {
		return nil, err
	}
	if err := w.Start(r.ctx); err != nil {
		return nil, err
	}

	skip, err := w.Install(ctx)
	if err != nil {
		w.Terminate()
		return nil, fmt.Errorf("install %s: %w", version, err)
	}

	if r.waiting != nil {
		r.waiting.Terminate()
		r.waiting = nil
	}

	if skip || r.active == nil || r.clients.ControlledBy(r.active.Version()) == 0 {
		if err := r.promote(ctx, w); err != nil {
			return nil, err
		}
		return w, nil
	}

	r.waiting = w
	r.obs.Logger().WithWorker(version).Info(ctx, "worker waiting",
		observe.Field{Key: "active", Value: r.active.Version()},
	)
	return w, nil
}

// promote retires the active worker and activates w. Must hold r.mu.
func (r *Registration) promote(ctx context.Context, w *Worker) error {
	if old := r.active; old != nil {
		r.active = nil
		old.Terminate()
	}
	if err := w.Activate(ctx); err != nil {
		w.Terminate()
		return fmt.Errorf("activate %s: %w", w.Version(), err)
	}
	r.active = w
	return nil
}

// Track records a client. A new client is controlled by the active worker.
func (r *Registration) Track(id string) Client {
	r.mu.Lock()
	controller := ""
	if r.active != nil {
		controller = r.active.Version()
	}
	r.mu.Unlock()
	return r.clients.Add(id, controller)
}

// ReleaseClient forgets a client. When it was the last one held by the
// active worker, the waiting worker is activated.
func (r *Registration) ReleaseClient(ctx context.Context, id string) error {
	r.clients.Remove(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promoteWaiting(ctx)
}

// promoteWaiting activates the waiting worker when the active one controls
// no client. Must hold r.mu.
func (r *Registration) promoteWaiting(ctx context.Context) error {
	if r.closed || r.waiting == nil {
		return nil
	}
	if r.active != nil && r.clients.ControlledBy(r.active.Version()) > 0 {
		return nil
	}
	w := r.waiting
	r.waiting = nil
	return r.promote(ctx, w)
}

// Active returns the active worker or nil.
func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the waiting worker or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Status returns a snapshot of the registration.
func (r *Registration) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{Clients: r.clients.Len()}
	if r.active != nil {
		st.Active = r.active.Version()
		st.ActiveState = r.active.State().String()
		st.Controlled = r.clients.ControlledBy(st.Active)
	}
	if r.waiting != nil {
		st.Waiting = r.waiting.Version()
	}
	return st
}

// Close terminates every worker. Further updates fail with
// ErrRegistrationDone.
func (r *Registration) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	for _, w := range []*Worker{r.waiting, r.active} {
		if w != nil {
			w.Terminate()
		}
	}
	r.active, r.waiting = nil, nil
	r.cancel()
	return nil
}
