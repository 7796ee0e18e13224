// Package config loads process configuration for the sitecache binary.
//
// Values are layered: struct defaults (envDefault tags), then an optional
// YAML file, then SITECACHE_* environment variables. YAML values may
// reference ${VAR}; a reference to an unset variable is an error.
package config
