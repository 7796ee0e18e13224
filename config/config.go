package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/jonwraymond/sitecache/observe"
)

// EnvPrefix prefixes every process environment variable.
const EnvPrefix = "SITECACHE_"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// ValidDrivers lists the supported storage drivers.
var ValidDrivers = []string{DriverMemory, DriverSQLite}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the process configuration shared by the proxy and serve
// commands.
type Config struct {
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN" envDefault:":8080"`

	// Origin is the upstream site the proxy fronts.
	Origin string `yaml:"origin" json:"origin" env:"ORIGIN"`

	// Version is the cache version the proxy activates at startup.
	Version string `yaml:"version" json:"version" env:"VERSION"`

	SkipWaiting  bool `yaml:"skip_waiting" json:"skip_waiting" env:"SKIP_WAITING" envDefault:"true"`
	IgnoreSearch bool `yaml:"ignore_search" json:"ignore_search" env:"IGNORE_SEARCH"`

	// ClientTTL forgets pages not seen for this long. Zero keeps them.
	ClientTTL  time.Duration `yaml:"client_ttl" json:"client_ttl" env:"CLIENT_TTL" envDefault:"30m"`
	MaxClients int           `yaml:"max_clients" json:"max_clients" env:"MAX_CLIENTS" envDefault:"10000"`

	Storage StorageConfig         `yaml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Admin   AdminConfig           `yaml:"admin" json:"admin" envPrefix:"ADMIN_"`
	Tracing observe.TracingConfig `yaml:"tracing" json:"tracing" envPrefix:"TRACING_"`
	Metrics observe.MetricsConfig `yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
	Logging observe.LoggingConfig `yaml:"logging" json:"logging" envPrefix:"LOG_"`
}

// StorageConfig selects the cache storage backend.
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver" env:"DRIVER" envDefault:"memory"`
	Path   string `yaml:"path" json:"path" env:"PATH" envDefault:"sitecache.db"`
}

// AdminConfig configures the admin API. Enabling it requires a signing key.
type AdminConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`

	// SigningKey is the HMAC key for bearer tokens.
	SigningKey string `yaml:"signing_key" json:"-" env:"SIGNING_KEY"`
	Issuer     string `yaml:"issuer" json:"issuer" env:"ISSUER" envDefault:"sitecache"`
	Audience   string `yaml:"audience" json:"audience" env:"AUDIENCE"`
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, in that order of precedence.
func Load(path string) (Config, error) {
	var cfg Config
	if err := ApplyDefaults(&cfg); err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := DecodeYAMLFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := OverlayEnv(&cfg, EnvPrefix); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	if !slices.Contains(ValidDrivers, c.Storage.Driver) {
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		return fmt.Errorf("%w: sqlite storage needs a path", ErrInvalidConfig)
	}
	if c.ClientTTL < 0 {
		return fmt.Errorf("%w: client ttl must not be negative", ErrInvalidConfig)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("%w: max clients must not be negative", ErrInvalidConfig)
	}
	if c.Admin.Enabled && c.Admin.SigningKey == "" {
		return fmt.Errorf("%w: admin api needs a signing key", ErrInvalidConfig)
	}
	if c.Origin != "" {
		u, err := url.Parse(c.Origin)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("%w: origin %q must be an absolute URL", ErrInvalidConfig, c.Origin)
		}
	}
	obs := c.Observe("sitecache", "")
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Observe returns the observability config for the process.
func (c Config) Observe(service, version string) observe.Config {
	return observe.Config{
		ServiceName: service,
		Version:     version,
		Tracing:     c.Tracing,
		Metrics:     c.Metrics,
		Logging:     c.Logging,
	}
}
