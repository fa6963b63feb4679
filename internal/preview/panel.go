package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leapstack-labs/sqlpreview/internal/compiler"
	"github.com/leapstack-labs/sqlpreview/internal/notifier"
)

// ErrDisposed is returned when a disposed panel is asked to render.
var ErrDisposed = errors.New("preview panel disposed")

// Panel is the live preview of one document.
type Panel struct {
	m        *Manager
	uri      string
	key      string
	surface  Surface
	debounce *Debouncer
	disposed *notifier.Emitter[struct{}]

	mu          sync.Mutex
	isDisposed  bool
	view        ViewState
	stale       bool
	highlighter Highlighter
	lastHTML    *string
	cleanups    []func()

	// cycleMu serializes render cycles.
	cycleMu sync.Mutex
}

func newPanel(m *Manager, uri, key string, s Surface) *Panel {
	p := &Panel{
		m:        m,
		uri:      uri,
		key:      key,
		surface:  s,
		disposed: notifier.NewEmitter[struct{}](),
		view:     s.ViewState(),
	}
	p.debounce = NewDebouncer(m.debounce, p.onDebounce)
	return p
}

// ID returns the surface identifier of the panel.
func (p *Panel) ID() string { return p.surface.ID() }

// URI returns the mirrored document URI.
func (p *Panel) URI() string { return p.uri }

// Key returns the registry identifier of the mirrored document.
func (p *Panel) Key() string { return p.key }

// Surface returns the rendered surface.
func (p *Panel) Surface() Surface { return p.surface }

// Disposed reports whether the panel has been disposed.
func (p *Panel) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isDisposed
}

// Visible reports whether the panel is in the Active (visible) state.
func (p *Panel) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view.Visible
}

// Stale reports whether content changed while the panel was hidden.
func (p *Panel) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// LastHTML returns the last successfully rendered fragment, or nil.
func (p *Panel) LastHTML() *string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyString(p.lastHTML)
}

// Reveal brings the panel to the front.
func (p *Panel) Reveal() {
	if p.surface.Alive() {
		p.surface.Reveal()
	}
}

// OnDidDispose registers fn to run once the panel is disposed.
func (p *Panel) OnDidDispose(fn func()) func() {
	return p.disposed.On(func(struct{}) { fn() })
}

// subscribe wires host and surface events to the panel.
func (p *Panel) subscribe() {
	host := p.m.host
	forDocument := func(uri string) {
		if DocumentKey(uri) == p.key {
			p.invalidate()
		}
	}

	cleanups := []func(){
		host.OnDidChangeTextDocument(forDocument),
		host.OnDidOpenTextDocument(forDocument),
		host.OnDidChangeActiveTextEditor(forDocument),
		host.OnDidChangeColorTheme(p.themeChanged),
		p.surface.OnDidReceiveMessage(p.handleMessage),
		p.surface.OnDidChangeViewState(p.viewStateChanged),
		p.surface.OnDidDispose(p.Dispose),
	}

	p.mu.Lock()
	p.cleanups = append(p.cleanups, cleanups...)
	p.mu.Unlock()
}

// invalidate schedules a render cycle, or marks a hidden panel stale.
func (p *Panel) invalidate() {
	p.mu.Lock()
	if p.isDisposed {
		p.mu.Unlock()
		return
	}
	if !p.view.Visible {
		p.stale = true
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.debounce.Trigger()
}

func (p *Panel) themeChanged(theme string) {
	p.mu.Lock()
	if p.isDisposed {
		p.mu.Unlock()
		return
	}
	p.highlighter = nil
	p.lastHTML = nil
	p.mu.Unlock()

	p.m.logger.Debug("theme changed", "panel", p.ID(), "theme", theme)
	p.post(NewChangeThemeMessage())
	p.invalidate()
}

func (p *Panel) viewStateChanged(vs ViewState) {
	p.mu.Lock()
	if p.isDisposed {
		p.mu.Unlock()
		return
	}
	p.view = vs
	stale := p.stale
	p.mu.Unlock()

	if vs.Active {
		p.m.flags.Activate(p.key, p.ID())
		p.post(NewRefreshMessage(p.uri))
	} else {
		p.m.flags.Deactivate(p.ID())
	}

	if vs.Visible && stale {
		p.debounce.Trigger()
	}
}

func (p *Panel) handleMessage(msg Message) {
	switch msg.Command {
	case CommandRefresh:
		p.debounce.Trigger()
	default:
		p.m.logger.Debug("ignoring surface message", "panel", p.ID(), "command", msg.Command)
	}
}

func (p *Panel) onDebounce() {
	if err := p.Update(context.Background()); err != nil && !errors.Is(err, ErrDisposed) {
		p.m.logger.Error("preview update failed", "panel", p.ID(), "uri", p.uri, "error", err)
		p.m.host.ShowError(err.Error())
	}
}

// Update runs one render cycle immediately.
func (p *Panel) Update(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if p.Disposed() {
		return ErrDisposed
	}

	var (
		result Result
		sql    *string
	)
	text, err := p.readText(ctx)
	if err != nil {
		result = p.failure(err.Error())
	} else {
		out, err := p.m.compiler.Compile(ctx, text)
		if err != nil {
			result = p.failure(diagnosticMessage(err))
		} else {
			html, err := p.render(out)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.lastHTML = &html
			p.mu.Unlock()
			result = Success{SQL: out, HTML: html}
			sql = &out
		}
	}

	p.mu.Lock()
	p.stale = false
	view := p.view
	p.mu.Unlock()

	p.post(NewUpdateMessage(result))

	var stateErr error
	if p.m.state != nil {
		if err := p.m.state.Update(ctx, StateKeyLastSQL, sql); err != nil {
			stateErr = fmt.Errorf("failed to store last SQL: %w", err)
		}
	}

	p.m.flags.Sync(p.key, p.ID(), view.Active)

	p.m.logger.Debug("preview updated", "panel", p.ID(), "status", result.Status())
	return stateErr
}

func (p *Panel) readText(ctx context.Context) (string, error) {
	if text, ok := p.m.host.OpenDocument(p.uri); ok {
		return text, nil
	}
	text, err := p.m.host.ReadDocument(ctx, p.uri)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p.uri, err)
	}
	return text, nil
}

func (p *Panel) render(sql string) (string, error) {
	p.mu.Lock()
	h := p.highlighter
	p.mu.Unlock()

	if h == nil {
		loaded, err := p.m.highlighters(p.m.host.ColorTheme())
		if err != nil {
			return "", fmt.Errorf("failed to load highlighter: %w", err)
		}
		h = loaded
		p.mu.Lock()
		p.highlighter = h
		p.mu.Unlock()
	}

	html, err := h.Render(sql, "sql")
	if err != nil {
		return "", fmt.Errorf("failed to highlight SQL: %w", err)
	}
	return html, nil
}

func (p *Panel) failure(message string) Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Failure{Message: message, LastHTML: copyString(p.lastHTML)}
}

// post sends msg if the surface is still alive.
func (p *Panel) post(msg any) {
	if !p.surface.Alive() {
		return
	}
	if err := p.surface.PostMessage(msg); err != nil {
		p.m.logger.Debug("post to surface failed", "panel", p.ID(), "error", err)
	}
}

// Dispose releases the panel. It is safe to call more than once.
func (p *Panel) Dispose() {
	p.mu.Lock()
	if p.isDisposed {
		p.mu.Unlock()
		return
	}
	p.isDisposed = true
	cleanups := p.cleanups
	p.cleanups = nil
	p.mu.Unlock()

	p.debounce.Stop()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	p.m.registry.unregister(p)
	p.m.flags.Clear(p.ID())
	p.surface.Dispose()

	p.m.logger.Debug("preview disposed", "panel", p.ID(), "uri", p.uri)
	p.disposed.Fire(struct{}{})
}

// diagnosticMessage returns the text shown for a failed compile.
func diagnosticMessage(err error) string {
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		return cerr.First().Message()
	}
	return err.Error()
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
