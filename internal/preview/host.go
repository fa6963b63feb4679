package preview

import "context"

// Events are the host notifications a panel subscribes to. Every On* method
// returns the function that removes the subscription.
type Events interface {
	OnDidOpenTextDocument(fn func(uri string)) func()
	OnDidChangeTextDocument(fn func(uri string)) func()
	OnDidChangeActiveTextEditor(fn func(uri string)) func()
	OnDidChangeColorTheme(fn func(theme string)) func()
}

// Host is the editor the previews are attached to.
type Host interface {
	Events

	// OpenDocument returns the editor text of uri if the document is open.
	OpenDocument(uri string) (string, bool)
	// ReadDocument reads uri from storage.
	ReadDocument(ctx context.Context, uri string) (string, error)
	// ColorTheme returns the configured colour theme name.
	ColorTheme() string
	// SetContext publishes a UI-conditional flag.
	SetContext(key string, value any)
	// ShowError surfaces a host-level error notification.
	ShowError(message string)
}

// ViewState is the visibility of a rendered surface.
type ViewState struct {
	Visible bool `json:"visible"`
	Active  bool `json:"active"`
}

// Message is an inbound message from the rendered surface.
type Message struct {
	Command string `json:"command"`
}

// Surface is the UI a panel renders into.
type Surface interface {
	ID() string
	// SetHTML replaces the page shell.
	SetHTML(html string)
	// PostMessage delivers msg to the page.
	PostMessage(msg any) error
	// Reveal brings the surface to the front.
	Reveal()
	// Alive reports whether the surface can still receive messages.
	Alive() bool
	ViewState() ViewState
	// AssetURI returns the URI the page loads the named shell asset from.
	AssetURI(name string) string
	// CSPSource returns the content-security-policy source for shell assets.
	CSPSource() string
	Dispose()

	OnDidReceiveMessage(fn func(Message)) func()
	OnDidChangeViewState(fn func(ViewState)) func()
	OnDidDispose(fn func()) func()
}

// SurfaceFactory creates rendered surfaces.
type SurfaceFactory interface {
	CreateSurface(title, documentURI string) (Surface, error)
}

// Memento is the host's workspace-persisted state.
type Memento interface {
	Update(ctx context.Context, key string, value *string) error
}

// Highlighter renders code as an HTML fragment.
type Highlighter interface {
	Render(code, lang string) (string, error)
}

// HighlighterLoader creates a Highlighter for a host theme name.
type HighlighterLoader func(theme string) (Highlighter, error)
