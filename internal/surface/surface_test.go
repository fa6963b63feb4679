package surface

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leapstack-labs/sqlpreview/internal/preview"
	"github.com/leapstack-labs/sqlpreview/internal/surface/resources"
	"github.com/leapstack-labs/sqlpreview/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docURI = "file:///work/query.prql"

type env struct {
	hub    *Hub
	server *httptest.Server

	mu     sync.Mutex
	opened []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{}
	e.hub = NewHub(Config{
		Logger: testutil.NewTestLogger(t),
		Open: func(url string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.opened = append(e.opened, url)
		},
	})
	e.server = httptest.NewServer(e.hub.Handler())
	t.Cleanup(e.server.Close)
	e.hub.SetBaseURL(e.server.URL)
	return e
}

func (e *env) openedURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.opened...)
}

func (e *env) create(t *testing.T) *Surface {
	t.Helper()
	ps, err := e.hub.CreateSurface(preview.Title(docURI), docURI)
	require.NoError(t, err)
	s, ok := ps.(*Surface)
	require.True(t, ok)
	return s
}

func (e *env) dial(t *testing.T, s *Surface) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/preview/" + s.ID() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestHub_CreateSurface(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "SQL Preview: query.prql", s.Title())
	assert.Equal(t, docURI, s.DocumentURI())
	assert.Equal(t, e.server.URL+"/preview/"+s.ID(), s.URL())
	assert.True(t, s.Alive())
	assert.Equal(t, preview.ViewState{Visible: true}, s.ViewState())
	assert.Equal(t, "/static/preview.js", s.AssetURI(preview.ShellScript))
	assert.Equal(t, "'self'", s.CSPSource())

	got, ok := e.hub.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, e.hub.Len())
}

func TestSurface_PageServesShell(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	resp, err := http.Get(s.URL())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "no shell yet")

	html, err := preview.RenderShell(resources.FS(), s)
	require.NoError(t, err)
	s.SetHTML(html)
	assert.Equal(t, []string{s.URL()}, e.openedURLs(), "first shell opens the page")

	resp, err = http.Get(s.URL())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `src="/static/preview.js"`)
	assert.Contains(t, string(body), `href="/static/preview.css"`)
	assert.Contains(t, string(body), "script-src 'self'")
	assert.NotContains(t, string(body), "${")

	s.SetHTML(html)
	assert.Len(t, e.openedURLs(), 1, "later shells do not reopen")
}

func TestSurface_UnknownPage(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.server.URL + "/preview/missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSurface_StaticAssets(t *testing.T) {
	e := newEnv(t)

	for _, name := range []string{preview.ShellTemplate, preview.ShellScript, preview.ShellStyle} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Get(e.server.URL + resources.StaticPath(name))
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			_, err = fs.Stat(resources.FS(), name)
			assert.NoError(t, err)
		})
	}
}

func TestSurface_ReplaysLatestOnConnect(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	require.NoError(t, s.PostMessage(preview.NewRefreshMessage(docURI)))
	require.NoError(t, s.PostMessage(preview.NewUpdateMessage(preview.Success{SQL: "SELECT 1", HTML: "<pre>old</pre>"})))
	require.NoError(t, s.PostMessage(preview.NewUpdateMessage(preview.Success{SQL: "SELECT 2", HTML: "<pre>new</pre>"})))

	conn := e.dial(t, s)

	msg := readCommand(t, conn)
	assert.Equal(t, preview.CommandRefresh, msg["command"])
	assert.Equal(t, docURI, msg["documentUrl"])

	msg = readCommand(t, conn)
	assert.Equal(t, preview.CommandUpdate, msg["command"])
	result := msg["result"].(map[string]any)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "SELECT 2", result["sql"])
	assert.Equal(t, "<pre>new</pre>", s.Fragment())
}

func TestSurface_PostReachesConnectedPages(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	a := e.dial(t, s)
	b := e.dial(t, s)
	eventually(t, func() bool { return s.Clients() == 2 }, "both pages attach")

	require.NoError(t, s.PostMessage(preview.NewChangeThemeMessage()))

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, preview.CommandChangeTheme, readCommand(t, conn)["command"])
	}
}

func TestSurface_ViewState(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	var (
		mu    sync.Mutex
		views []preview.ViewState
	)
	s.OnDidChangeViewState(func(vs preview.ViewState) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, vs)
	})
	last := func() (preview.ViewState, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(views) == 0 {
			return preview.ViewState{}, 0
		}
		return views[len(views)-1], len(views)
	}

	conn := e.dial(t, s)
	require.NoError(t, conn.WriteJSON(inbound{Command: CommandViewState, Visible: true, Active: true}))
	eventually(t, func() bool {
		vs, n := last()
		return n == 1 && vs == preview.ViewState{Visible: true, Active: true}
	}, "page focus reported")

	// Repeating the same state does not fire again.
	require.NoError(t, conn.WriteJSON(inbound{Command: CommandViewState, Visible: true, Active: true}))
	require.NoError(t, conn.WriteJSON(inbound{Command: CommandViewState, Visible: true, Active: false}))
	eventually(t, func() bool {
		vs, n := last()
		return n == 2 && vs == preview.ViewState{Visible: true}
	}, "blur reported once")

	require.NoError(t, conn.Close())
	eventually(t, func() bool {
		vs, n := last()
		return n == 3 && vs == preview.ViewState{}
	}, "last page leaving hides the surface")
	assert.True(t, s.Alive(), "disconnecting does not dispose")
}

func TestSurface_InboundRefresh(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	got := make(chan preview.Message, 1)
	s.OnDidReceiveMessage(func(m preview.Message) { got <- m })

	conn := e.dial(t, s)
	require.NoError(t, conn.WriteJSON(inbound{Command: preview.CommandRefresh}))

	select {
	case m := <-got:
		assert.Equal(t, preview.CommandRefresh, m.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh not received")
	}
}

func TestSurface_CloseDisposes(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	disposed := make(chan struct{})
	s.OnDidDispose(func() { close(disposed) })

	conn := e.dial(t, s)
	require.NoError(t, conn.WriteJSON(inbound{Command: CommandClose}))

	select {
	case <-disposed:
	case <-time.After(2 * time.Second):
		t.Fatal("surface not disposed")
	}

	assert.False(t, s.Alive())
	assert.Equal(t, 0, e.hub.Len())
	assert.ErrorIs(t, s.PostMessage(preview.NewChangeThemeMessage()), ErrClosed)

	resp, err := http.Get(s.URL())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Disposing twice is a no-op.
	s.Dispose()
}

func TestSurface_Reveal(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)

	s.Reveal()
	assert.Equal(t, []string{s.URL()}, e.openedURLs(), "no page: open it")

	conn := e.dial(t, s)
	eventually(t, func() bool { return s.Clients() == 1 }, "page attaches")

	s.Reveal()
	assert.Equal(t, CommandReveal, readCommand(t, conn)["command"])
	assert.Len(t, e.openedURLs(), 1)
}

func TestSurface_RevealWithoutOpenerLogsURL(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	hub := NewHub(Config{BaseURL: "http://preview.test", Logger: logger})
	ps, err := hub.CreateSurface(preview.Title(docURI), docURI)
	require.NoError(t, err)
	s := ps.(*Surface)

	s.Reveal()
	assert.True(t, logs.Contains("preview available"))
	assert.True(t, logs.Contains(s.URL()), logs.String())
}

func TestSurface_Mirror(t *testing.T) {
	e := newEnv(t)
	s := e.create(t)
	require.NoError(t, s.PostMessage(preview.NewUpdateMessage(preview.Success{SQL: "SELECT 1", HTML: "<pre>first</pre>"})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL()+"/mirror", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream ended before %q", want)
				if strings.Contains(line, want) {
					assert.Contains(t, line, MirrorElementID)
					return
				}
			case <-deadline:
				t.Fatalf("mirror never sent %q", want)
			}
		}
	}

	waitFor("<pre>first</pre>")

	last := "<pre>first</pre>"
	require.NoError(t, s.PostMessage(preview.NewUpdateMessage(preview.Failure{Message: "boom", LastHTML: &last})))
	waitFor("<pre>first</pre>")

	require.NoError(t, s.PostMessage(preview.NewUpdateMessage(preview.Success{SQL: "SELECT 2", HTML: "<pre>second</pre>"})))
	waitFor("<pre>second</pre>")
}

func TestFragmentOf(t *testing.T) {
	last := "<pre>x</pre>"
	assert.Equal(t, "<pre>y</pre>", fragmentOf(preview.Success{HTML: "<pre>y</pre>"}))
	assert.Equal(t, last, fragmentOf(preview.Failure{Message: "m", LastHTML: &last}))
	assert.Equal(t, "", fragmentOf(preview.Failure{Message: "m"}))
}

func TestInbound_Decode(t *testing.T) {
	var msg inbound
	require.NoError(t, json.Unmarshal([]byte(`{"command":"viewState","visible":true,"active":false}`), &msg))
	assert.Equal(t, inbound{Command: CommandViewState, Visible: true}, msg)
}
