package preview

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DocumentKey returns the registry identifier of a document URI. The scheme is
// lowercased, file paths are cleaned and query and fragment are dropped.
// Input without a scheme is treated as a file path.
func DocumentKey(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// No scheme, or a Windows drive letter.
		p := uri
		if abs, err := filepath.Abs(uri); err == nil {
			p = abs
		}
		return "file://" + filepath.ToSlash(filepath.Clean(p))
	}

	scheme := strings.ToLower(u.Scheme)
	if u.Opaque != "" {
		return scheme + ":" + u.Opaque
	}

	p := u.Path
	if scheme == "file" && p != "" {
		p = path.Clean(p)
	}
	return scheme + "://" + strings.ToLower(u.Host) + p
}

// Title returns the panel title for a document URI.
func Title(uri string) string {
	name := uri
	if u, err := url.Parse(uri); err == nil {
		switch {
		case u.Opaque != "":
			name = u.Opaque
		case u.Path != "":
			name = u.Path
		}
	}
	return "SQL Preview: " + path.Base(filepath.ToSlash(name))
}
