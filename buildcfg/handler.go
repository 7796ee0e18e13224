package buildcfg

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

// encodings lists precompressed siblings in preference order.
var encodings = []struct {
	token string
	ext   string
}{
	{"br", ".br"},
	{"gzip", ".gz"},
}

type siteHandler struct {
	cfg    Config
	pages  fs.FS
	assets fs.FS
}

// Handler serves the site in fsys, which is rooted at the project, under the
// base path. Paths are resolved in the pages directory, then the assets
// directory. Unresolved paths get the fallback page when one is configured,
// else 404.
func (c Config) Handler(fsys fs.FS) (http.Handler, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	pages, err := fs.Sub(fsys, c.Pages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDir, err)
	}
	assets, err := fs.Sub(fsys, c.Assets)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDir, err)
	}
	return &siteHandler{cfg: c, pages: pages, assets: assets}, nil
}

func (h *siteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	p := r.URL.Path
	if base := h.cfg.Base; base != "" {
		if p == base {
			target := base + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return
		}
		if !strings.HasPrefix(p, base+"/") {
			http.NotFound(w, r)
			return
		}
		p = strings.TrimPrefix(p, base)
	}

	if name, ok := resolve(h.pages, p); ok {
		h.serveFile(w, r, h.pages, name)
		return
	}
	if name, ok := resolve(h.assets, p); ok {
		h.serveFile(w, r, h.assets, name)
		return
	}
	if h.cfg.Fallback != "" {
		h.serveFile(w, r, h.pages, path.Clean(h.cfg.Fallback))
		return
	}
	http.NotFound(w, r)
}

func (h *siteHandler) serveFile(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}

	file := name
	if h.cfg.Precompress {
		w.Header().Add("Vary", "Accept-Encoding")
		accept := r.Header.Get("Accept-Encoding")
		for _, enc := range encodings {
			if !acceptsEncoding(accept, enc.token) {
				continue
			}
			if info, err := fs.Stat(fsys, name+enc.ext); err == nil && info.Mode().IsRegular() {
				file = name + enc.ext
				w.Header().Set("Content-Encoding", enc.token)
				break
			}
		}
	}

	f, err := fsys.Open(file)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	content, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		content = bytes.NewReader(data)
	}
	http.ServeContent(w, r, name, info.ModTime(), content)
}

// acceptsEncoding reports whether an Accept-Encoding header allows token.
func acceptsEncoding(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), token) {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}
