package surface

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/leapstack-labs/sqlpreview/internal/preview"
	"github.com/leapstack-labs/sqlpreview/internal/surface/resources"
	"github.com/starfederation/datastar-go/datastar"
)

// MirrorElementID is the id of the element patched by the mirror stream.
const MirrorElementID = "sqlpreview-mirror"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// inbound is a page-to-server message.
type inbound struct {
	Command string `json:"command"`
	Visible bool   `json:"visible"`
	Active  bool   `json:"active"`
}

// Config holds configuration for a Hub.
type Config struct {
	// BaseURL is the address pages are served from, e.g. http://127.0.0.1:7878.
	BaseURL string
	// Open shows a page URL to the user. Optional.
	Open   func(url string)
	Logger *slog.Logger
}

// Hub creates surfaces and serves their pages.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	baseURL  string
	opener   func(url string)
	surfaces map[string]*Surface
}

var _ preview.SurfaceFactory = (*Hub)(nil)

// NewHub creates a Hub.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger:   cfg.Logger,
		baseURL:  cfg.BaseURL,
		opener:   cfg.Open,
		surfaces: make(map[string]*Surface),
	}
}

// SetBaseURL changes the address pages are served from.
func (h *Hub) SetBaseURL(u string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseURL = strings.TrimRight(u, "/")
}

// SetOpener changes how pages are shown to the user.
func (h *Hub) SetOpener(open func(url string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opener = open
}

// URL returns the page address of surface id.
func (h *Hub) URL(id string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return strings.TrimRight(h.baseURL, "/") + "/preview/" + id
}

// CreateSurface implements preview.SurfaceFactory.
func (h *Hub) CreateSurface(title, documentURI string) (preview.Surface, error) {
	s := newSurface(h, uuid.NewString(), title, documentURI)

	h.mu.Lock()
	h.surfaces[s.id] = s
	h.mu.Unlock()

	h.logger.Debug("surface created", "surface", s.id, "document", documentURI)
	return s, nil
}

// Get returns the live surface with the given id.
func (h *Hub) Get(id string) (*Surface, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.surfaces[id]
	return s, ok
}

// Len returns the number of live surfaces.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.surfaces)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.surfaces, id)
}

func (h *Hub) open(url string) {
	h.mu.RLock()
	open := h.opener
	h.mu.RUnlock()

	if open == nil {
		h.logger.Info("preview available", "url", url)
		return
	}
	open(url)
}

// Routes registers the page, websocket, mirror and static routes on r.
func (h *Hub) Routes(r chi.Router) {
	r.Handle("/static/*", resources.Handler())
	r.Route("/preview/{id}", func(r chi.Router) {
		r.Get("/", h.handlePage)
		r.Get("/ws", h.handleSocket)
		r.Get("/mirror", h.handleMirror)
	})
}

// Handler returns a router serving only the hub's routes.
func (h *Hub) Handler() http.Handler {
	r := chi.NewMux()
	h.Routes(r)
	return r
}

func (h *Hub) lookup(w http.ResponseWriter, r *http.Request) (*Surface, bool) {
	s, ok := h.Get(chi.URLParam(r, "id"))
	if !ok || !s.Alive() {
		http.NotFound(w, r)
		return nil, false
	}
	return s, true
}

func (h *Hub) handlePage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	html := s.HTML()
	if html == "" {
		http.Error(w, "preview is not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(html))
}

func (h *Hub) handleSocket(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "surface", s.id, "error", err)
		return
	}

	c := &client{conn: conn}
	if err := s.attach(c); err != nil {
		h.logger.Debug("page attach failed", "surface", s.id, "error", err)
		_ = conn.Close()
		return
	}
	h.logger.Debug("page connected", "surface", s.id, "clients", s.Clients())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "surface", s.id, "error", err)
			}
			s.detach(c)
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed page message", "surface", s.id, "error", err)
			continue
		}

		switch msg.Command {
		case CommandViewState:
			s.report(c, preview.ViewState{Visible: msg.Visible, Active: msg.Active})
		case CommandClose:
			s.Dispose()
			return
		default:
			s.received.Fire(preview.Message{Command: msg.Command})
		}
	}
}

// handleMirror streams the rendered fragment as Datastar element patches.
func (h *Hub) handleMirror(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	updates := s.mirror.Subscribe()
	defer s.mirror.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElements(mirrorElement(s.Fragment())); err != nil {
		h.logger.Debug("mirror write failed", "surface", s.id, "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case fragment := <-updates:
			if err := sse.PatchElements(mirrorElement(fragment)); err != nil {
				_ = sse.ConsoleError(err)
				return
			}
		}
	}
}

func mirrorElement(fragment string) string {
	return `<div id="` + MirrorElementID + `">` + fragment + `</div>`
}
