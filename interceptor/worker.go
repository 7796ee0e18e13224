package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/sitecache/cache"
	"github.com/jonwraymond/sitecache/observe"
)

// Config configures a single worker.
type Config struct {
	// Version names the worker and the store it owns. Bumping it is what
	// invalidates previously stored responses.
	Version string

	// Scope is the origin pages are served from. It decides whether a
	// response is same-origin. Nil treats every request as same-origin.
	Scope *url.URL

	// SkipWaiting asks to be activated as soon as installation finishes,
	// even while an older worker still controls pages.
	SkipWaiting bool

	// Policy decides which network responses are stored.
	Policy cache.Policy

	// Keyer derives store keys from requests. Nil means cache.NewDefaultKeyer().
	Keyer cache.Keyer
}

// DefaultConfig returns a config for version with the default policy and
// SkipWaiting enabled.
func DefaultConfig(version string) Config {
	return Config{
		Version:     version,
		SkipWaiting: true,
		Policy:      cache.DefaultPolicy(),
		Keyer:       cache.NewDefaultKeyer(),
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Version == "" {
		return ErrMissingVersion
	}
	if err := cache.ValidateName(c.Version); err != nil {
		return err
	}
	if c.Scope != nil && (!c.Scope.IsAbs() || c.Scope.Host == "") {
		return ErrInvalidScope
	}
	return nil
}

// Option configures a Worker.
type Option func(*Worker)

// WithMiddleware instruments the worker.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(w *Worker) {
		if mw != nil {
			w.obs = mw
		}
	}
}

// WithClients shares a client set with the worker. Activation claims every
// client in it.
func WithClients(c *Clients) Option {
	return func(w *Worker) {
		if c != nil {
			w.clients = c
		}
	}
}

type msgKind int

const (
	msgInstall msgKind = iota
	msgActivate
	msgTerminate
)

type message struct {
	kind  msgKind
	ctx   context.Context
	reply chan error
}

// Worker is a versioned request interceptor.
//
// Lifecycle events are delivered as messages to a single goroutine owned by
// the worker, so transitions never interleave. Fetches run on the caller's
// goroutine and only read the state.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Fetch is served only while the worker is active.
//   - Store write failures are logged and never fail a fetch.
type Worker struct {
	cfg     Config
	storage cache.Storage
	fetcher Fetcher
	obs     *observe.Middleware
	clients *Clients

	state   atomic.Int32
	started atomic.Bool

	// life is held for writing while the worker retires and for reading
	// while it writes to its store.
	life sync.RWMutex

	msgs chan message
	done chan struct{}
	stop sync.Once
}

// NewWorker creates a worker in the parsed state. Call Start before Install.
func NewWorker(cfg Config, storage cache.Storage, fetcher Fetcher, opts ...Option) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if storage == nil {
		return nil, ErrNilStorage
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if cfg.Keyer == nil {
		cfg.Keyer = cache.NewDefaultKeyer()
	}

	w := &Worker{
		cfg:     cfg,
		storage: storage,
		fetcher: fetcher,
		obs:     observe.NopMiddleware(),
		clients: NewClients(),
		msgs:    make(chan message),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Version returns the worker's version identifier.
func (w *Worker) Version() string { return w.cfg.Version }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// SkipWaiting reports whether the worker asked to be activated immediately.
func (w *Worker) SkipWaiting() bool { return w.cfg.SkipWaiting }

// Done is closed when the worker's goroutine exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Start launches the worker goroutine. It runs until ctx is cancelled or
// Terminate is called.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go w.run(ctx)
	return nil
}

// Install moves the worker through installing to installed. It reports
// whether the worker asked to skip waiting.
func (w *Worker) Install(ctx context.Context) (bool, error) {
	if err := w.send(ctx, msgInstall); err != nil {
		return false, err
	}
	return w.cfg.SkipWaiting, nil
}

// Activate deletes every store not named after this worker's version,
// claims all clients and makes the worker active.
func (w *Worker) Activate(ctx context.Context) error {
	return w.send(ctx, msgActivate)
}

// Terminate makes the worker redundant and stops its goroutine. It is safe
// to call more than once and on a worker that was never started.
func (w *Worker) Terminate() {
	if !w.started.Load() {
		w.stop.Do(func() {
			w.retire(context.Background())
			close(w.done)
		})
		return
	}
	_ = w.send(context.Background(), msgTerminate)
}

func (w *Worker) send(ctx context.Context, kind msgKind) error {
	if !w.started.Load() {
		return ErrNotStarted
	}
	m := message{kind: kind, ctx: ctx, reply: make(chan error, 1)}
	select {
	case w.msgs <- m:
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-m.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.stop.Do(func() { close(w.done) })
	for {
		select {
		case <-ctx.Done():
			w.retire(context.WithoutCancel(ctx))
			return
		case m := <-w.msgs:
			switch m.kind {
			case msgInstall:
				m.reply <- w.install(m.ctx)
			case msgActivate:
				m.reply <- w.activate(m.ctx)
			case msgTerminate:
				w.retire(m.ctx)
				m.reply <- nil
				return
			}
		}
	}
}

func (w *Worker) install(ctx context.Context) error {
	if err := w.transition(ctx, StateInstalling); err != nil {
		return err
	}
	return w.transition(ctx, StateInstalled)
}

func (w *Worker) activate(ctx context.Context) error {
	if err := w.transition(ctx, StateActivating); err != nil {
		return err
	}

	if err := w.deleteStale(ctx); err != nil {
		w.setState(ctx, StateRedundant)
		return err
	}

	if n := w.clients.ClaimAll(w.cfg.Version); n > 0 {
		w.logger().Info(ctx, "claimed clients", observe.Field{Key: "clients", Value: n})
	}
	return w.transition(ctx, StateActive)
}

// deleteStale removes every store whose name differs from the worker's
// version. Deletions run concurrently and activation fails if any fails.
func (w *Worker) deleteStale(ctx context.Context) error {
	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		g.Go(func() error {
			w.logger().Info(gctx, "deleting old cache", observe.Field{Key: "store", Value: name})
			if _, err := w.storage.Delete(gctx, name); err != nil {
				return fmt.Errorf("delete store %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) transition(ctx context.Context, to State) error {
	from := w.State()
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	w.state.Store(int32(to))
	w.obs.Transition(ctx, w.cfg.Version, from.String(), to.String())
	return nil
}

func (w *Worker) setState(ctx context.Context, to State) {
	if err := w.transition(ctx, to); err != nil && !errors.Is(err, ErrInvalidState) {
		w.logger().Error(ctx, "lifecycle transition failed", observe.Field{Key: "error", Value: err})
	}
}

// retire makes the worker redundant once in-flight store writes finish.
// No write starts afterwards.
func (w *Worker) retire(ctx context.Context) {
	w.life.Lock()
	defer w.life.Unlock()
	w.setState(ctx, StateRedundant)
}

func (w *Worker) logger() observe.Logger {
	return w.obs.Logger().WithWorker(w.cfg.Version)
}

// Fetch answers req from the worker's store, or from the network on a miss.
// Network responses that the policy accepts are stored before being
// returned. Network errors are returned unchanged.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if w.State() != StateActive {
		return nil, ErrNotActive
	}

	meta := observe.FetchMeta{Version: w.cfg.Version, Method: req.Method}
	if req.URL != nil {
		meta.URL = req.URL.String()
	}

	var resp *http.Response
	_, err := w.obs.ObserveFetch(ctx, meta, func(ctx context.Context) (observe.Outcome, error) {
		var (
			outcome observe.Outcome
			err     error
		)
		resp, outcome, err = w.handle(ctx, req)
		return outcome, err
	})
	return resp, err
}

func (w *Worker) handle(ctx context.Context, req *http.Request) (*http.Response, observe.Outcome, error) {
	key, keyErr := w.cfg.Keyer.Key(req)
	if keyErr == nil {
		if entry, ok := w.match(ctx, key); ok {
			return entry.Response(req), observe.OutcomeHit, nil
		}
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, observe.OutcomeError, err
	}

	typ := Classify(w.cfg.Scope, req, resp)
	if keyErr != nil || !w.cfg.Policy.Cacheable(req.Method, resp, typ) {
		return resp, observe.OutcomePassthrough, nil
	}

	entry, dup, err := cache.NewEntry(key, resp, typ)
	if err != nil {
		if dup == nil {
			return nil, observe.OutcomeError, err
		}
		w.logger().Warn(ctx, "response not stored",
			observe.Field{Key: "key", Value: key.String()},
			observe.Field{Key: "error", Value: err},
		)
		return dup, observe.OutcomePassthrough, nil
	}
	w.put(context.WithoutCancel(ctx), key, entry)
	return dup, observe.OutcomeStored, nil
}

func (w *Worker) match(ctx context.Context, key cache.Key) (*cache.Entry, bool) {
	ok, err := w.storage.Has(ctx, w.cfg.Version)
	if err != nil {
		w.logger().Warn(ctx, "store lookup failed", observe.Field{Key: "error", Value: err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	store, err := w.storage.Open(ctx, w.cfg.Version)
	if err != nil {
		w.logger().Warn(ctx, "store open failed", observe.Field{Key: "error", Value: err})
		return nil, false
	}
	entry, ok, err := store.Match(ctx, key)
	if err != nil {
		w.logger().Warn(ctx, "store match failed",
			observe.Field{Key: "key", Value: key.String()},
			observe.Field{Key: "error", Value: err},
		)
		return nil, false
	}
	return entry, ok
}

func (w *Worker) put(ctx context.Context, key cache.Key, entry *cache.Entry) {
	// A retired worker must not recreate the store its successor deleted.
	w.life.RLock()
	defer w.life.RUnlock()
	if w.State() != StateActive {
		return
	}
	store, err := w.storage.Open(ctx, w.cfg.Version)
	if err == nil {
		err = store.Put(ctx, key, entry)
	}
	if err != nil {
		w.logger().Warn(ctx, "store write failed",
			observe.Field{Key: "key", Value: key.String()},
			observe.Field{Key: "error", Value: err},
		)
	}
}
