package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jonwraymond/sitecache/cache"
	"github.com/jonwraymond/sitecache/cache/sqlite"
	"github.com/jonwraymond/sitecache/config"
	"github.com/jonwraymond/sitecache/health"
	"github.com/jonwraymond/sitecache/internal/build"
	"github.com/jonwraymond/sitecache/observe"
	"github.com/jonwraymond/sitecache/observe/exporters"
)

const (
	serviceName     = "sitecache"
	shutdownTimeout = 10 * time.Second
)

// runtime holds the process-wide telemetry and storage built from config.
type runtime struct {
	cfg     config.Config
	obs     observe.Observer
	mw      *observe.Middleware
	storage cache.Storage
	health  *health.Aggregator
}

func newRuntime(ctx context.Context, cfg config.Config, out io.Writer) (*runtime, error) {
	ocfg := cfg.Observe(serviceName, build.Version)
	ocfg.Output = out
	obs, err := observe.NewObserver(ctx, ocfg)
	if err != nil {
		return nil, fmt.Errorf("observer: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("middleware: %w", err)
	}

	rt := &runtime{cfg: cfg, obs: obs, mw: mw, health: health.NewAggregator()}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.Path)
		if err != nil {
			_ = obs.Shutdown(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
		rt.storage = db
		rt.health.Register("storage", health.NewPingChecker("storage", db.Ping))
	default:
		rt.storage = cache.NewMemoryStorage()
	}
	return rt, nil
}

func (rt *runtime) logger() observe.Logger { return rt.mw.Logger() }

// mux returns a mux carrying the health endpoints and, for the prometheus
// exporter, /metrics.
func (rt *runtime) mux() *http.ServeMux {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, rt.health)
	if rt.cfg.Metrics.Enabled && rt.cfg.Metrics.Exporter == "prometheus" {
		mux.Handle("/metrics", exporters.MetricsHandler())
	}
	return mux
}

// Close releases storage and flushes telemetry.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.storage != nil {
		if err := rt.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if err := rt.obs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observer: %w", err))
	}
	return errors.Join(errs...)
}

// serveHTTP serves handler on ln until ctx is done, then shuts the server
// down gracefully.
func serveHTTP(ctx context.Context, ln net.Listener, handler http.Handler, logger observe.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", observe.Field{Key: "addr", Value: ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
