package buildcfg

import "errors"

// Sentinel errors for build configuration.
var (
	ErrInvalidBase      = errors.New("buildcfg: base path must be empty or start with / and not end with /")
	ErrInvalidDir       = errors.New("buildcfg: output directory is invalid")
	ErrInvalidFallback  = errors.New("buildcfg: fallback must be a file inside the pages directory")
	ErrUnresolvedRoutes = errors.New("buildcfg: routes did not resolve to a page")
)
