// Package surface serves preview panels to a browser. Each surface is one
// page reachable at /preview/{id}; the page talks to its panel over a
// websocket and a read-only Datastar mirror streams the rendered fragment.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leapstack-labs/sqlpreview/internal/notifier"
	"github.com/leapstack-labs/sqlpreview/internal/preview"
	"github.com/leapstack-labs/sqlpreview/internal/surface/resources"
)

// ErrClosed is returned when posting to a disposed surface.
var ErrClosed = errors.New("surface closed")

const (
	writeWait = 5 * time.Second

	// CommandViewState and CommandClose are page-to-server commands handled
	// by the surface itself.
	CommandViewState = "viewState"
	CommandClose     = "close"
	// CommandReveal asks a connected page to take focus.
	CommandReveal = "reveal"
)

type revealMessage struct {
	Command string `json:"command"`
}

// client is one connected page. gorilla connections allow a single writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	view preview.ViewState
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "preview closed")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// Surface is a browser page hosting one preview panel.
type Surface struct {
	hub         *Hub
	id          string
	title       string
	documentURI string

	received *notifier.Emitter[preview.Message]
	views    *notifier.Emitter[preview.ViewState]
	disposed *notifier.Emitter[struct{}]
	// mirror carries the latest rendered fragment to SSE subscribers.
	mirror *notifier.Notifier[string]
	done   chan struct{}

	mu          sync.Mutex
	alive       bool
	html        string
	view        preview.ViewState
	clients     map[*client]struct{}
	lastRefresh []byte
	lastUpdate  []byte
	fragment    string
}

var _ preview.Surface = (*Surface)(nil)

func newSurface(h *Hub, id, title, documentURI string) *Surface {
	return &Surface{
		hub:         h,
		id:          id,
		title:       title,
		documentURI: documentURI,
		received:    notifier.NewEmitter[preview.Message](),
		views:       notifier.NewEmitter[preview.ViewState](),
		disposed:    notifier.NewEmitter[struct{}](),
		mirror:      notifier.New[string](),
		done:        make(chan struct{}),
		alive:       true,
		// A new surface is shown as soon as its shell is set.
		view:    preview.ViewState{Visible: true},
		clients: make(map[*client]struct{}),
	}
}

// ID implements preview.Surface.
func (s *Surface) ID() string { return s.id }

// Title returns the page title.
func (s *Surface) Title() string { return s.title }

// DocumentURI returns the URI of the previewed document.
func (s *Surface) DocumentURI() string { return s.documentURI }

// URL returns the absolute address of the page.
func (s *Surface) URL() string { return s.hub.URL(s.id) }

// HTML returns the page shell.
func (s *Surface) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.html
}

// Fragment returns the latest rendered fragment.
func (s *Surface) Fragment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragment
}

// SetHTML implements preview.Surface. The first shell set on a surface with
// no connected page opens the page in the editor's browser.
func (s *Surface) SetHTML(html string) {
	s.mu.Lock()
	first := s.html == ""
	s.html = html
	connected := len(s.clients) > 0
	s.mu.Unlock()

	if first && !connected {
		s.hub.open(s.URL())
	}
}

// PostMessage implements preview.Surface.
func (s *Surface) PostMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode surface message: %w", err)
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return ErrClosed
	}
	fragment, mirrored := "", false
	switch m := msg.(type) {
	case preview.RefreshMessage:
		s.lastRefresh = data
	case preview.UpdateMessage:
		s.lastUpdate = data
		fragment, mirrored = fragmentOf(m.Result), true
		s.fragment = fragment
	}
	clients := s.snapshot()
	s.mu.Unlock()

	if mirrored {
		s.mirror.Broadcast(fragment)
	}
	s.broadcast(clients, data)
	return nil
}

func (s *Surface) broadcast(clients []*client, data []byte) {
	for _, c := range clients {
		if err := c.write(data); err != nil {
			s.hub.logger.Debug("dropping preview page", "surface", s.id, "error", err)
			s.detach(c)
		}
	}
}

// Reveal implements preview.Surface. A connected page is asked to take focus;
// otherwise the page is opened again.
func (s *Surface) Reveal() {
	s.mu.Lock()
	clients := s.snapshot()
	s.mu.Unlock()

	if len(clients) == 0 {
		s.hub.open(s.URL())
		return
	}
	data, _ := json.Marshal(revealMessage{Command: CommandReveal})
	s.broadcast(clients, data)
}

// Alive implements preview.Surface.
func (s *Surface) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// ViewState implements preview.Surface.
func (s *Surface) ViewState() preview.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Clients returns the number of connected pages.
func (s *Surface) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// AssetURI implements preview.Surface.
func (s *Surface) AssetURI(name string) string {
	return resources.StaticPath(name)
}

// CSPSource implements preview.Surface. Assets are served by the same origin.
func (s *Surface) CSPSource() string { return "'self'" }

// Dispose implements preview.Surface. Connected pages are closed.
func (s *Surface) Dispose() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	clients := s.snapshot()
	s.clients = make(map[*client]struct{})
	close(s.done)
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	s.hub.remove(s.id)
	s.hub.logger.Debug("surface disposed", "surface", s.id)
	s.disposed.Fire(struct{}{})
}

// OnDidReceiveMessage implements preview.Surface.
func (s *Surface) OnDidReceiveMessage(fn func(preview.Message)) func() {
	return s.received.On(fn)
}

// OnDidChangeViewState implements preview.Surface.
func (s *Surface) OnDidChangeViewState(fn func(preview.ViewState)) func() {
	return s.views.On(fn)
}

// OnDidDispose implements preview.Surface.
func (s *Surface) OnDidDispose(fn func()) func() {
	return s.disposed.On(func(struct{}) { fn() })
}

// attach adds a page and replays the latest refresh and update to it.
func (s *Surface) attach(c *client) error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return ErrClosed
	}
	s.clients[c] = struct{}{}
	var replay [][]byte
	for _, data := range [][]byte{s.lastRefresh, s.lastUpdate} {
		if data != nil {
			replay = append(replay, data)
		}
	}
	s.mu.Unlock()

	for _, data := range replay {
		if err := c.write(data); err != nil {
			s.detach(c)
			return err
		}
	}
	return nil
}

// detach removes a page. The surface is hidden once no page remains.
func (s *Surface) detach(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	_ = c.conn.Close()
	changed := false
	if len(s.clients) == 0 && s.alive {
		changed = s.setViewLocked(preview.ViewState{})
	}
	view := s.view
	s.mu.Unlock()

	if changed {
		s.views.Fire(view)
	}
}

// report records the view state of one page. The surface is visible or
// active when any of its pages is.
func (s *Surface) report(c *client, vs preview.ViewState) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok || !s.alive {
		s.mu.Unlock()
		return
	}
	c.view = vs
	var merged preview.ViewState
	for other := range s.clients {
		merged.Visible = merged.Visible || other.view.Visible
		merged.Active = merged.Active || other.view.Active
	}
	changed := s.setViewLocked(merged)
	s.mu.Unlock()

	if changed {
		s.views.Fire(merged)
	}
}

func (s *Surface) setViewLocked(vs preview.ViewState) bool {
	if s.view == vs {
		return false
	}
	s.view = vs
	return true
}

// snapshot must be called with s.mu held.
func (s *Surface) snapshot() []*client {
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}

// fragmentOf returns what the mirror shows for a result.
func fragmentOf(r preview.Result) string {
	switch r := r.(type) {
	case preview.Success:
		return r.HTML
	case preview.Failure:
		if r.LastHTML != nil {
			return *r.LastHTML
		}
	}
	return ""
}
