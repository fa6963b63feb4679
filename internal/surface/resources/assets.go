// Package resources provides the preview page shell and its static assets.
package resources

// StaticDirectoryPath is the path to static assets from the project root.
const StaticDirectoryPath = "internal/surface/resources/static"

// StaticPath returns the URL path for a static asset.
func StaticPath(name string) string {
	return "/static/" + name
}
