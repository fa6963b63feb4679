// Package highlight renders SQL as syntax-highlighted HTML using chroma.
package highlight

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// ClassPrefix is prepended to every token class in class-based output.
const ClassPrefix = "hl-"

// Highlighter renders code for one resolved theme.
type Highlighter struct {
	theme     string
	style     *chroma.Style
	formatter *html.Formatter
}

// Load creates a Highlighter for the host theme name, resolving it with
// ResolveTheme first.
func Load(theme string) (*Highlighter, error) {
	resolved := ResolveTheme(theme)

	style := styles.Fallback
	classes := resolved == InheritTheme
	if !classes {
		s, ok := styles.Registry[resolved]
		if !ok {
			return nil, fmt.Errorf("unknown style %q", resolved)
		}
		style = s
	}

	return &Highlighter{
		theme: resolved,
		style: style,
		formatter: html.New(
			html.WithClasses(classes),
			html.ClassPrefix(ClassPrefix),
			html.TabWidth(4),
		),
	}, nil
}

// Theme returns the resolved style name.
func (h *Highlighter) Theme() string {
	return h.theme
}

// Render returns code in lang as an HTML fragment wrapped in a <pre> block.
func (h *Highlighter) Render(code, lang string) (string, error) {
	it, err := tokenise(code, lang)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := h.formatter.Format(&b, h.style, it); err != nil {
		return "", fmt.Errorf("failed to format %s: %w", lang, err)
	}
	return b.String(), nil
}

// CSS returns the stylesheet for class-based output.
func (h *Highlighter) CSS() (string, error) {
	var b strings.Builder
	if err := h.formatter.WriteCSS(&b, h.style); err != nil {
		return "", fmt.Errorf("failed to write css: %w", err)
	}
	return b.String(), nil
}

// WriteTerminal writes code coloured with ANSI escapes to w.
func (h *Highlighter) WriteTerminal(w io.Writer, code, lang string) error {
	it, err := tokenise(code, lang)
	if err != nil {
		return err
	}
	return formatters.Get("terminal256").Format(w, h.style, it)
}

func tokenise(code, lang string) (chroma.Iterator, error) {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenise %s: %w", lang, err)
	}
	return it, nil
}
