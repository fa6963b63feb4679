//go:build dev

package resources

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

// staticDir resolves the static directory next to this source file, so the
// page shell can be edited without rebuilding.
func staticDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return StaticDirectoryPath
	}
	return filepath.Join(filepath.Dir(filename), "static")
}

// FS returns the static asset tree read from disk.
func FS() fs.FS {
	return os.DirFS(staticDir())
}

// Handler serves the assets under /static/ straight from the filesystem.
func Handler() http.Handler {
	dir := staticDir()
	slog.Debug("static assets served from filesystem", "path", dir)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		http.StripPrefix("/static/", http.FileServer(http.FS(os.DirFS(dir)))).ServeHTTP(w, r)
	})
}
