package highlight

import (
	"strings"

	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// InheritTheme renders class-based markup that the preview stylesheet colours
// from the host's CSS variables.
const InheritTheme = "css-variables"

var lower = cases.Lower(language.Und)

// NormalizeThemeName lowercases name, drops the literal "theme" and joins the
// remaining words with hyphens: "Dark (Visual Studio)" becomes
// "dark-(visual-studio)".
func NormalizeThemeName(name string) string {
	s := lower.String(name)
	s = strings.ReplaceAll(s, "theme", "")
	return strings.Join(strings.Fields(s), "-")
}

// ThemeCandidates returns the identifiers tried, in order, when resolving name.
func ThemeCandidates(name string) []string {
	candidates := make([]string, 0, 3)
	if name != "" {
		candidates = append(candidates, name)
		if n := NormalizeThemeName(name); n != "" && n != name {
			candidates = append(candidates, n)
		}
	}
	return append(candidates, InheritTheme)
}

// ResolveTheme maps a host colour theme name to a bundled style name.
func ResolveTheme(name string) string {
	for _, c := range ThemeCandidates(name) {
		if IsBundled(c) {
			return c
		}
	}
	return InheritTheme
}

// IsBundled reports whether name is a style chroma ships with.
// InheritTheme is always accepted.
func IsBundled(name string) bool {
	if name == InheritTheme {
		return true
	}
	_, ok := styles.Registry[name]
	return ok
}

// Themes lists every bundled style name plus InheritTheme.
func Themes() []string {
	return append(styles.Names(), InheritTheme)
}
