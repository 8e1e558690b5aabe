// Package web bundles the browser client and serves it with history-mode
// routing: unknown paths get index.html so client routes survive reloads.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// Assets returns the bundled client files rooted at dist/.
func Assets() fs.FS {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: dist is missing from the embedded files: " + err.Error())
	}
	return sub
}

// SPAHandler serves the bundled client. Existing files are served as is;
// anything else falls back to index.html, which is never cached.
func SPAHandler() http.Handler {
	return spaHandler(Assets())
}

func spaHandler(assets fs.FS) http.Handler {
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" || name == indexFile {
			serveIndex(w, r, assets)
			return
		}

		info, err := fs.Stat(assets, name)
		if err != nil || info.IsDir() {
			serveIndex(w, r, assets)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, assets fs.FS) {
	data, err := fs.ReadFile(assets, indexFile)
	if err != nil {
		slog.Debug("web: index.html not bundled", "error", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
