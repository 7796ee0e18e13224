package buildcfg

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// RouteReport is the outcome of CheckRoutes.
type RouteReport struct {
	// Resolved maps each resolved route to its file under the pages
	// directory.
	Resolved map[string]string
	// Unresolved lists routes with no page, in input order.
	Unresolved []string
}

// OK reports whether every route resolved.
func (r RouteReport) OK() bool { return len(r.Unresolved) == 0 }

// CheckRoutes resolves each route against the pages directory in fsys, which
// is rooted at the project. A route resolves to <route>/index.html or
// <route>.html, or to itself when it names a file. Unresolved routes fail
// with ErrUnresolvedRoutes when Strict is set and there is no Fallback.
func (c Config) CheckRoutes(fsys fs.FS, routes []string) (RouteReport, error) {
	report := RouteReport{Resolved: make(map[string]string, len(routes))}

	pages, err := fs.Sub(fsys, c.Pages)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrInvalidDir, err)
	}

	var errs []error
	for _, route := range routes {
		if file, ok := resolve(pages, route); ok {
			report.Resolved[route] = file
			continue
		}
		report.Unresolved = append(report.Unresolved, route)
		errs = append(errs, fmt.Errorf("route %q: %w", route, fs.ErrNotExist))
	}

	if len(errs) > 0 && c.Strict && c.Fallback == "" {
		return report, errors.Join(append([]error{ErrUnresolvedRoutes}, errs...)...)
	}
	return report, nil
}

// candidates lists the files a site path may be served from, in order.
func candidates(sitePath string) []string {
	p := strings.TrimPrefix(path.Clean("/"+sitePath), "/")
	if p == "" {
		return []string{"index.html"}
	}
	if strings.HasSuffix(sitePath, "/") {
		return []string{p + "/index.html", p + ".html"}
	}
	return []string{p, p + ".html", p + "/index.html"}
}

// resolve finds the regular file serving sitePath in fsys.
func resolve(fsys fs.FS, sitePath string) (string, bool) {
	for _, name := range candidates(sitePath) {
		info, err := fs.Stat(fsys, name)
		if err == nil && info.Mode().IsRegular() {
			return name, true
		}
	}
	return "", false
}
