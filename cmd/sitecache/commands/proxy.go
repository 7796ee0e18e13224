package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/sitecache/auth"
	"github.com/jonwraymond/sitecache/cache"
	"github.com/jonwraymond/sitecache/config"
	"github.com/jonwraymond/sitecache/interceptor"
)

type proxyOptions struct {
	listen       string
	origin       string
	version      string
	driver       string
	db           string
	skipWaiting  bool
	ignoreSearch bool
	clientTTL    time.Duration
	maxClients   int
}

func (c *CLI) newProxyCmd() *cobra.Command {
	var opts proxyOptions

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the offline cache proxy in front of an origin",
		Long: `Run a reverse proxy that answers requests from a versioned cache store
and falls back to the origin on a miss. Starting with a new --cache-version
activates a fresh store and deletes every older one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig(opts.apply(cmd))
			if err != nil {
				return err
			}
			if cfg.Origin == "" {
				return fmt.Errorf("%w: origin is required", config.ErrInvalidConfig)
			}
			if cfg.Version == "" {
				return fmt.Errorf("%w: cache version is required", config.ErrInvalidConfig)
			}
			return runProxy(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.listen, "listen", "", "Address to listen on")
	f.StringVar(&opts.origin, "origin", "", "Upstream origin URL")
	f.StringVar(&opts.version, "cache-version", "", "Cache version to activate")
	f.StringVar(&opts.driver, "storage", "", "Storage driver ("+strings.Join(config.ValidDrivers, "|")+")")
	f.StringVar(&opts.db, "db", "", "SQLite database path")
	f.BoolVar(&opts.skipWaiting, "skip-waiting", true, "Activate a new version without waiting for clients")
	f.BoolVar(&opts.ignoreSearch, "ignore-search", false, "Ignore query strings when matching")
	f.DurationVar(&opts.clientTTL, "client-ttl", interceptor.DefaultClientTTL, "Forget clients not seen for this long (0 keeps them)")
	f.IntVar(&opts.maxClients, "max-clients", interceptor.DefaultMaxClients, "Maximum tracked clients (0 is unbounded)")

	return cmd
}

// apply overlays the flags the user set on the loaded config.
func (o *proxyOptions) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		f := cmd.Flags()
		if f.Changed("listen") {
			cfg.Listen = o.listen
		}
		if f.Changed("origin") {
			cfg.Origin = o.origin
		}
		if f.Changed("cache-version") {
			cfg.Version = o.version
		}
		if f.Changed("storage") {
			cfg.Storage.Driver = o.driver
		}
		if f.Changed("db") {
			cfg.Storage.Path = o.db
		}
		if f.Changed("skip-waiting") {
			cfg.SkipWaiting = o.skipWaiting
		}
		if f.Changed("ignore-search") {
			cfg.IgnoreSearch = o.ignoreSearch
		}
		if f.Changed("client-ttl") {
			cfg.ClientTTL = o.clientTTL
		}
		if f.Changed("max-clients") {
			cfg.MaxClients = o.maxClients
		}
	}
}

func runProxy(cmd *cobra.Command, cfg config.Config) (err error) {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	handler, reg, err := newProxyHandler(ctx, rt)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serveHTTP(ctx, ln, handler, rt.logger())
}

// newProxyHandler builds the registration for cfg.Origin, activates
// cfg.Version and returns the process handler.
func newProxyHandler(ctx context.Context, rt *runtime) (http.Handler, *interceptor.Registration, error) {
	cfg := rt.cfg
	scope, err := interceptor.ParseScope(cfg.Origin)
	if err != nil {
		return nil, nil, err
	}

	base := interceptor.Config{
		Scope:       scope,
		SkipWaiting: cfg.SkipWaiting,
		Policy:      cache.DefaultPolicy(),
		Keyer:       &cache.DefaultKeyer{IgnoreSearch: cfg.IgnoreSearch},
	}
	reg, err := interceptor.NewRegistration(ctx, base, rt.storage, interceptor.NewNetworkFetcher(nil), rt.mw,
		interceptor.WithClientTTL(cfg.ClientTTL),
		interceptor.WithMaxClients(cfg.MaxClients),
	)
	if err != nil {
		return nil, nil, err
	}
	if _, err := reg.Update(ctx, cfg.Version); err != nil {
		_ = reg.Close()
		return nil, nil, err
	}
	rt.health.Register("worker", interceptor.NewWorkerChecker(reg))

	mux := rt.mux()
	if cfg.Admin.Enabled {
		admin, err := adminHandler(cfg.Admin, reg, rt)
		if err != nil {
			_ = reg.Close()
			return nil, nil, err
		}
		mux.Handle("/-/sw/", admin)
	}
	mux.Handle("/", interceptor.NewProxy(scope, reg, rt.logger()))
	return mux, reg, nil
}

// adminHandler serves the admin API behind bearer token auth.
func adminHandler(cfg config.AdminConfig, reg *interceptor.Registration, rt *runtime) (http.Handler, error) {
	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("%w: admin api needs a signing key", config.ErrInvalidConfig)
	}
	h := interceptor.AdminHandler(reg, rt.logger())
	authn, err := auth.NewJWTAuthenticator(auth.JWTConfig{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
	}, []byte(cfg.SigningKey))
	if err != nil {
		return nil, err
	}
	return auth.RequireJWT(authn, auth.WithRole(auth.AdminRole), auth.WithLogger(rt.logger()))(h), nil
}
