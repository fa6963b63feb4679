//go:build !dev

package resources

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// FS returns the static asset tree, rooted at the static directory.
func FS() fs.FS {
	fsys, _ := fs.Sub(staticFS, "static")
	return fsys
}

// Handler serves the embedded assets under /static/.
func Handler() http.Handler {
	fileServer := http.FileServer(http.FS(FS()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		http.StripPrefix("/static/", fileServer).ServeHTTP(w, r)
	})
}
