package preview

import (
	"context"
	"fmt"
	"html"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/leapstack-labs/sqlpreview/internal/compiler"
	"github.com/leapstack-labs/sqlpreview/internal/notifier"
	"github.com/leapstack-labs/sqlpreview/internal/testutil"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	opened  *notifier.Emitter[string]
	changed *notifier.Emitter[string]
	active  *notifier.Emitter[string]
	theme   *notifier.Emitter[string]

	mu       sync.Mutex
	docs     map[string]string
	files    map[string]string
	colors   string
	contexts map[string]any
	errors   []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		opened:   notifier.NewEmitter[string](),
		changed:  notifier.NewEmitter[string](),
		active:   notifier.NewEmitter[string](),
		theme:    notifier.NewEmitter[string](),
		docs:     make(map[string]string),
		files:    make(map[string]string),
		colors:   "Monokai",
		contexts: make(map[string]any),
	}
}

func (h *fakeHost) OnDidOpenTextDocument(fn func(string)) func()       { return h.opened.On(fn) }
func (h *fakeHost) OnDidChangeTextDocument(fn func(string)) func()     { return h.changed.On(fn) }
func (h *fakeHost) OnDidChangeActiveTextEditor(fn func(string)) func() { return h.active.On(fn) }
func (h *fakeHost) OnDidChangeColorTheme(fn func(string)) func()       { return h.theme.On(fn) }

func (h *fakeHost) OpenDocument(uri string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text, ok := h.docs[uri]
	return text, ok
}

func (h *fakeHost) ReadDocument(_ context.Context, uri string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text, ok := h.files[uri]
	if !ok {
		return "", fs.ErrNotExist
	}
	return text, nil
}

func (h *fakeHost) ColorTheme() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.colors
}

func (h *fakeHost) SetContext(key string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contexts[key] = value
}

func (h *fakeHost) ShowError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, message)
}

func (h *fakeHost) setText(uri, text string) {
	h.mu.Lock()
	h.docs[uri] = text
	h.mu.Unlock()
}

func (h *fakeHost) edit(uri, text string) {
	h.setText(uri, text)
	h.changed.Fire(uri)
}

func (h *fakeHost) setTheme(name string) {
	h.mu.Lock()
	h.colors = name
	h.mu.Unlock()
	h.theme.Fire(name)
}

func (h *fakeHost) context(key string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.contexts[key]
	return v, ok
}

func (h *fakeHost) errorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errors)
}

type fakeSurface struct {
	id       string
	received *notifier.Emitter[Message]
	views    *notifier.Emitter[ViewState]
	disposed *notifier.Emitter[struct{}]

	mu       sync.Mutex
	html     string
	messages []any
	alive    bool
	view     ViewState
	reveals  int
}

func newFakeSurface(id string) *fakeSurface {
	return &fakeSurface{
		id:       id,
		received: notifier.NewEmitter[Message](),
		views:    notifier.NewEmitter[ViewState](),
		disposed: notifier.NewEmitter[struct{}](),
		alive:    true,
		view:     ViewState{Visible: true, Active: true},
	}
}

func (s *fakeSurface) ID() string { return s.id }

func (s *fakeSurface) SetHTML(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = html
}

func (s *fakeSurface) PostMessage(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return fmt.Errorf("surface %s closed", s.id)
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeSurface) Reveal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reveals++
}

func (s *fakeSurface) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *fakeSurface) ViewState() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *fakeSurface) AssetURI(name string) string { return "/static/" + name }
func (s *fakeSurface) CSPSource() string           { return "'self'" }

func (s *fakeSurface) Dispose() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	s.mu.Unlock()
	s.disposed.Fire(struct{}{})
}

func (s *fakeSurface) OnDidReceiveMessage(fn func(Message)) func()    { return s.received.On(fn) }
func (s *fakeSurface) OnDidChangeViewState(fn func(ViewState)) func() { return s.views.On(fn) }
func (s *fakeSurface) OnDidDispose(fn func()) func() {
	return s.disposed.On(func(struct{}) { fn() })
}

func (s *fakeSurface) setView(vs ViewState) {
	s.mu.Lock()
	s.view = vs
	s.mu.Unlock()
	s.views.Fire(vs)
}

func (s *fakeSurface) updates() []UpdateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []UpdateMessage
	for _, m := range s.messages {
		if u, ok := m.(UpdateMessage); ok {
			out = append(out, u)
		}
	}
	return out
}

func (s *fakeSurface) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.messages {
		switch v := m.(type) {
		case UpdateMessage:
			out = append(out, v.Command)
		case RefreshMessage:
			out = append(out, v.Command)
		case ChangeThemeMessage:
			out = append(out, v.Command)
		}
	}
	return out
}

type fakeFactory struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
	err      error
}

func (f *fakeFactory) CreateSurface(_, _ string) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeSurface(fmt.Sprintf("surface-%d", len(f.surfaces)+1))
	f.surfaces = append(f.surfaces, s)
	return s, nil
}

func (f *fakeFactory) last() *fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surfaces[len(f.surfaces)-1]
}

// fakeCompiler maps known sources to SQL; other sources fail with
// "unexpected token".
type fakeCompiler struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []string
}

func (c *fakeCompiler) Compile(_ context.Context, source string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, source)
	if sql, ok := c.outputs[source]; ok {
		return sql, nil
	}
	return "", compiler.NewError("unexpected token")
}

func (c *fakeCompiler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeCompiler) lastCall() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

type fakeHighlighter struct{ theme string }

func (h fakeHighlighter) Render(code, lang string) (string, error) {
	return fmt.Sprintf(`<pre class="%s %s">%s</pre>`, h.theme, lang, html.EscapeString(code)), nil
}

type fakeMemento struct {
	mu     sync.Mutex
	values map[string]*string
}

func (m *fakeMemento) Update(_ context.Context, key string, value *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *fakeMemento) get(key string) (*string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

const testDebounce = 30 * time.Millisecond

func testAssets() fstest.MapFS {
	return fstest.MapFS{
		ShellTemplate: {Data: []byte(`<meta content="script-src ${cspSource}"><script src="${scriptUri}"></script><link href="${cssUri}">`)},
		ShellScript:   {Data: []byte(`// script`)},
		ShellStyle:    {Data: []byte(`/* style */`)},
	}
}

type harness struct {
	host     *fakeHost
	factory  *fakeFactory
	compiler *fakeCompiler
	state    *fakeMemento
	loads    atomic.Int32
	manager  *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		host:    newFakeHost(),
		factory: &fakeFactory{},
		compiler: &fakeCompiler{outputs: map[string]string{
			"from employees | select name": "SELECT name FROM employees",
			"from employees":               "SELECT * FROM employees",
		}},
		state: &fakeMemento{values: make(map[string]*string)},
	}
	h.manager = NewManager(Config{
		Host:     h.host,
		Surfaces: h.factory,
		Compiler: h.compiler,
		Highlighters: func(theme string) (Highlighter, error) {
			h.loads.Add(1)
			return fakeHighlighter{theme: theme}, nil
		},
		State:    h.state,
		Assets:   testAssets(),
		Debounce: testDebounce,
		Logger:   testutil.NewTestLogger(t),
	})
	t.Cleanup(h.manager.Close)
	return h
}

// settle waits long enough for any armed debounce to fire and finish.
func settle() {
	time.Sleep(5 * testDebounce)
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}
