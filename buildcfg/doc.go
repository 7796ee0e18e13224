// Package buildcfg describes how a static site is emitted and served.
//
// A Config names the output directories for pages and assets, an optional
// fallback page, whether outputs are precompressed, whether unresolved routes
// fail the build, and the base path the site is mounted under. The base path
// comes from BASE_PATH and defaults to the site root.
//
// Config is a plain value. Nothing mutates it after Load returns.
package buildcfg
