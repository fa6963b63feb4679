package preview

import (
	"fmt"
	"io/fs"
	"strings"
)

// Shell asset names.
const (
	ShellTemplate = "preview.html"
	ShellScript   = "preview.js"
	ShellStyle    = "preview.css"
)

// Shell template placeholders.
const (
	placeholderCSPSource = "${cspSource}"
	placeholderScriptURI = "${scriptUri}"
	placeholderCSSURI    = "${cssUri}"
)

// RenderShell loads the HTML template from assets and substitutes the
// surface's resource URIs. Every shell asset must exist.
func RenderShell(assets fs.FS, s Surface) (string, error) {
	if assets == nil {
		return "", fmt.Errorf("no preview assets configured")
	}

	tpl, err := fs.ReadFile(assets, ShellTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to load preview template: %w", err)
	}
	for _, name := range []string{ShellScript, ShellStyle} {
		if _, err := fs.Stat(assets, name); err != nil {
			return "", fmt.Errorf("failed to load preview asset %s: %w", name, err)
		}
	}

	r := strings.NewReplacer(
		placeholderCSPSource, s.CSPSource(),
		placeholderScriptURI, s.AssetURI(ShellScript),
		placeholderCSSURI, s.AssetURI(ShellStyle),
	)
	return r.Replace(string(tpl)), nil
}
