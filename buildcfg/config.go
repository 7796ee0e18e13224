package buildcfg

import (
	"fmt"
	"path"
	"strings"

	"github.com/jonwraymond/sitecache/config"
)

// Defaults for a Config.
const (
	DefaultPages  = "build"
	DefaultAssets = "build"
)

// Config is the build configuration record.
type Config struct {
	// Pages is the directory pages are written to.
	Pages string `json:"pages" yaml:"pages"`
	// Assets is the directory static assets are written to.
	Assets string `json:"assets" yaml:"assets"`
	// Fallback names a page served for unresolved paths. Empty disables it.
	Fallback string `json:"fallback,omitempty" yaml:"fallback"`
	// Precompress emits and serves .gz and .br siblings.
	Precompress bool `json:"precompress" yaml:"precompress"`
	// Strict fails route checks when a route has no page and no fallback.
	Strict bool `json:"strict" yaml:"strict"`
	// Base is the path the site is mounted under, without a trailing slash.
	Base string `json:"base" yaml:"base" env:"BASE_PATH"`
}

// Default returns the configuration with every field at its default.
func Default() Config {
	return Config{
		Pages:  DefaultPages,
		Assets: DefaultAssets,
		Strict: true,
	}
}

// Load returns the default configuration with BASE_PATH applied. An unset
// or empty BASE_PATH leaves the base empty.
func Load() (Config, error) {
	cfg := Default()
	if err := config.OverlayEnv(&cfg, ""); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path on the defaults, then applies
// BASE_PATH. File values may reference ${VAR}.
func LoadFile(file string) (Config, error) {
	cfg := Default()
	if err := config.DecodeYAMLFile(file, &cfg); err != nil {
		return Config{}, err
	}
	if err := config.OverlayEnv(&cfg, ""); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Base != "" && (!strings.HasPrefix(c.Base, "/") || strings.HasSuffix(c.Base, "/")) {
		return fmt.Errorf("%w: %q", ErrInvalidBase, c.Base)
	}
	if c.Pages == "" {
		return fmt.Errorf("%w: pages is empty", ErrInvalidDir)
	}
	if c.Assets == "" {
		return fmt.Errorf("%w: assets is empty", ErrInvalidDir)
	}
	if c.Fallback != "" {
		clean := path.Clean(c.Fallback)
		if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%w: %q", ErrInvalidFallback, c.Fallback)
		}
	}
	return nil
}

// Path prefixes a site path with the base path.
func (c Config) Path(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.Base + p
}
