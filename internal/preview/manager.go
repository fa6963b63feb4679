package preview

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/sqlpreview/internal/compiler"
	"github.com/leapstack-labs/sqlpreview/internal/highlight"
)

// Config holds the collaborators of a Manager.
type Config struct {
	Host     Host
	Surfaces SurfaceFactory
	Compiler compiler.Compiler
	// Highlighters defaults to chroma highlighters from the highlight package.
	Highlighters HighlighterLoader
	// State receives the last compiled SQL. Optional.
	State Memento
	// Assets holds the page shell.
	Assets   fs.FS
	Debounce time.Duration
	Logger   *slog.Logger
}

// Manager creates and tracks preview panels.
type Manager struct {
	host         Host
	surfaces     SurfaceFactory
	compiler     compiler.Compiler
	highlighters HighlighterLoader
	state        Memento
	assets       fs.FS
	debounce     time.Duration
	logger       *slog.Logger

	registry *Registry
	flags    *ContextFlags

	// showMu makes lookup-or-create atomic.
	showMu sync.Mutex
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Highlighters == nil {
		cfg.Highlighters = LoadHighlighter
	}
	return &Manager{
		host:         cfg.Host,
		surfaces:     cfg.Surfaces,
		compiler:     cfg.Compiler,
		highlighters: cfg.Highlighters,
		state:        cfg.State,
		assets:       cfg.Assets,
		debounce:     cfg.Debounce,
		logger:       cfg.Logger,
		registry:     NewRegistry(),
		flags:        NewContextFlags(cfg.Host),
	}
}

// LoadHighlighter is the default HighlighterLoader.
func LoadHighlighter(theme string) (Highlighter, error) {
	return highlight.Load(theme)
}

// Registry returns the panel registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Flags returns the active-context flags.
func (m *Manager) Flags() *ContextFlags { return m.flags }

// Show returns the preview of uri, revealing an existing panel or creating a
// new one and rendering it once.
func (m *Manager) Show(ctx context.Context, uri string) (*Panel, error) {
	m.showMu.Lock()
	defer m.showMu.Unlock()

	key := DocumentKey(uri)
	if p, ok := m.registry.Get(key); ok && !p.Disposed() {
		m.logger.Debug("revealing existing preview", "panel", p.ID(), "uri", uri)
		p.Reveal()
		return p, nil
	}

	surface, err := m.surfaces.CreateSurface(Title(uri), uri)
	if err != nil {
		err = fmt.Errorf("failed to create preview surface: %w", err)
		m.host.ShowError(err.Error())
		return nil, err
	}

	p := newPanel(m, uri, key, surface)
	m.registry.register(p)

	html, err := RenderShell(m.assets, surface)
	if err != nil {
		p.Dispose()
		m.logger.Error("preview shell failed to load", "uri", uri, "error", err)
		m.host.ShowError(err.Error())
		return nil, err
	}
	surface.SetHTML(html)
	p.subscribe()

	m.logger.Info("preview opened", "panel", p.ID(), "uri", uri)

	if err := p.Update(ctx); err != nil {
		m.logger.Error("initial preview update failed", "panel", p.ID(), "error", err)
		m.host.ShowError(err.Error())
	}
	return p, nil
}

// Lookup returns the live preview of uri.
func (m *Manager) Lookup(uri string) (*Panel, bool) {
	p, ok := m.registry.Get(DocumentKey(uri))
	if !ok || p.Disposed() {
		return nil, false
	}
	return p, true
}

// Close disposes every registered panel, one entry at a time.
func (m *Manager) Close() {
	for _, p := range m.registry.Panels() {
		p.Dispose()
	}
}
