// Package build carries version information stamped in at link time.
package build

// Set with -ldflags "-X github.com/jonwraymond/sitecache/internal/build.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
