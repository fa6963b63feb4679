// Package host bridges an editor to the preview manager. The editor speaks
// JSON-RPC 2.0 with Content-Length framing over stdio: it reports documents,
// focus and configuration, asks for previews and receives context flags and
// messages back.
package host

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/sqlpreview/internal/notifier"
	"github.com/leapstack-labs/sqlpreview/internal/preview"
	"github.com/leapstack-labs/sqlpreview/internal/state"
)

// Previewer opens preview panels.
type Previewer interface {
	Show(ctx context.Context, uri string) (*preview.Panel, error)
	// Lookup returns the live panel of uri, if any.
	Lookup(uri string) (*preview.Panel, bool)
}

// Config holds configuration for a Server.
type Config struct {
	Reader io.Reader
	Writer io.Writer
	// State backs sqlpreview/lastSql. Optional.
	State state.Store
	// Watcher reports disk changes of previewed documents that are not open
	// in the editor. Optional.
	Watcher *Watcher
	// Theme is used until the editor reports one.
	Theme string
	// OnShutdown runs when the editor requests shutdown.
	OnShutdown func()
	Version    string
	Logger     *slog.Logger
}

// Server is the editor side of the previews.
type Server struct {
	documents *DocumentStore
	previewer Previewer
	state     state.Store
	watcher   *Watcher
	version   string

	opened  *notifier.Emitter[string]
	changed *notifier.Emitter[string]
	active  *notifier.Emitter[string]
	theme   *notifier.Emitter[string]

	themeMu    sync.RWMutex
	colorTheme string

	watchMu sync.Mutex
	watched map[string]bool

	// I/O
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	nextID  atomic.Int64

	logger *slog.Logger

	onShutdown  func()
	initialized atomic.Bool
	shutdown    atomic.Bool
	exited      atomic.Bool
}

var _ preview.Host = (*Server)(nil)

// NewServer creates a bridge reading requests from cfg.Reader.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		documents:  NewDocumentStore(),
		state:      cfg.State,
		watcher:    cfg.Watcher,
		version:    cfg.Version,
		opened:     notifier.NewEmitter[string](),
		changed:    notifier.NewEmitter[string](),
		active:     notifier.NewEmitter[string](),
		theme:      notifier.NewEmitter[string](),
		colorTheme: cfg.Theme,
		watched:    make(map[string]bool),
		reader:     bufio.NewReader(cfg.Reader),
		writer:     cfg.Writer,
		logger:     cfg.Logger,
		onShutdown: cfg.OnShutdown,
	}
	if s.watcher != nil {
		s.watcher.OnChange(s.fileChanged)
	}
	return s
}

// SetPreviewer sets the handler of sqlpreview/showPreview.
func (s *Server) SetPreviewer(p Previewer) { s.previewer = p }

// Documents returns the open documents.
func (s *Server) Documents() *DocumentStore { return s.documents }

// Run processes messages until the editor sends exit, the input ends or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("sqlpreview host starting")

	msgs := make(chan *Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			msg, err := readMessage(s.reader)
			if err != nil {
				if errors.Is(err, errMalformed) {
					s.logger.Error("error reading message", "error", err)
					continue
				}
				readErr <- err
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				s.logger.Info("editor disconnected")
				return nil
			}
			return fmt.Errorf("failed to read from editor: %w", err)
		case msg := <-msgs:
			if err := s.handleMessage(ctx, msg); err != nil {
				s.logger.Error("error handling message", "method", msg.Method, "error", err)
			}
			if s.exited.Load() {
				return nil
			}
		}
	}
}

// errMalformed marks a frame that was read completely but could not be used.
var errMalformed = errors.New("malformed message")

// readMessage reads one Content-Length framed message.
func readMessage(r *bufio.Reader) (*Message, error) {
	var contentLength int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			contentLength, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid Content-Length: %v", errMalformed, err)
			}
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", errMalformed)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return &msg, nil
}

// writeMessage frames msg onto w.
func writeMessage(w io.Writer, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func (s *Server) write(msg *Message) {
	msg.JSONRPC = "2.0"

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := writeMessage(s.writer, msg); err != nil {
		s.logger.Error("error writing message", "method", msg.Method, "error", err)
	}
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(id *json.RawMessage, result any, rerr *ResponseError) {
	msg := Message{ID: id}
	if rerr != nil {
		msg.Error = rerr
	} else {
		data, err := json.Marshal(result)
		if err != nil {
			msg.Error = &ResponseError{Code: CodeInternalError, Message: err.Error()}
		} else {
			msg.Result = data
		}
	}
	s.write(&msg)
}

// sendNotification sends a JSON-RPC notification.
func (s *Server) sendNotification(method string, params any) {
	msg := Message{Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			s.logger.Error("error encoding notification", "method", method, "error", err)
			return
		}
		msg.Params = data
	}
	s.write(&msg)
}

// sendRequest sends a request to the editor. Responses are logged only.
func (s *Server) sendRequest(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		s.logger.Error("error encoding request", "method", method, "error", err)
		return
	}
	id := json.RawMessage(strconv.FormatInt(s.nextID.Add(1), 10))
	s.write(&Message{ID: &id, Method: method, Params: data})
}

// --- preview.Host ---

// OnDidOpenTextDocument implements preview.Events.
func (s *Server) OnDidOpenTextDocument(fn func(uri string)) func() { return s.opened.On(fn) }

// OnDidChangeTextDocument implements preview.Events. Disk changes of watched
// documents are reported here too.
func (s *Server) OnDidChangeTextDocument(fn func(uri string)) func() { return s.changed.On(fn) }

// OnDidChangeActiveTextEditor implements preview.Events.
func (s *Server) OnDidChangeActiveTextEditor(fn func(uri string)) func() { return s.active.On(fn) }

// OnDidChangeColorTheme implements preview.Events.
func (s *Server) OnDidChangeColorTheme(fn func(theme string)) func() { return s.theme.On(fn) }

// OpenDocument implements preview.Host.
func (s *Server) OpenDocument(uri string) (string, bool) {
	doc, ok := s.documents.Get(uri)
	if !ok {
		return "", false
	}
	return doc.Content, true
}

// ReadDocument implements preview.Host.
func (s *Server) ReadDocument(_ context.Context, uri string) (string, error) {
	path, err := URIToPath(uri)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ColorTheme implements preview.Host.
func (s *Server) ColorTheme() string {
	s.themeMu.RLock()
	defer s.themeMu.RUnlock()
	return s.colorTheme
}

// SetContext implements preview.Host.
func (s *Server) SetContext(key string, value any) {
	s.sendNotification(MethodSetContext, SetContextParams{Key: key, Value: value})
}

// ShowError implements preview.Host.
func (s *Server) ShowError(message string) {
	s.sendNotification(MethodShowMessage, ShowMessageParams{Type: MessageTypeError, Message: message})
}

// ShowDocument asks the editor to open url externally.
func (s *Server) ShowDocument(url string) {
	s.sendRequest(MethodShowDocument, ShowDocumentParams{URI: url, External: true, TakeFocus: true})
}

func (s *Server) setColorTheme(theme string) bool {
	s.themeMu.Lock()
	defer s.themeMu.Unlock()
	if theme == "" || theme == s.colorTheme {
		return false
	}
	s.colorTheme = theme
	return true
}

// fileChanged reports a disk change unless the editor owns the document.
func (s *Server) fileChanged(path string) {
	uri := PathToURI(path)
	if _, open := s.documents.Get(uri); open {
		return
	}
	s.changed.Fire(uri)
}

// watchUnopened watches the file behind p while p lives, when the editor does
// not have it open.
func (s *Server) watchUnopened(p *preview.Panel) {
	if s.watcher == nil {
		return
	}
	if _, open := s.documents.Get(p.URI()); open {
		return
	}
	path, err := URIToPath(p.URI())
	if err != nil {
		s.logger.Debug("not watching document", "uri", p.URI(), "error", err)
		return
	}

	s.watchMu.Lock()
	if s.watched[p.Key()] {
		s.watchMu.Unlock()
		return
	}
	s.watched[p.Key()] = true
	s.watchMu.Unlock()

	if err := s.watcher.Add(path); err != nil {
		s.logger.Warn("failed to watch document", "uri", p.URI(), "error", err)
		s.watchMu.Lock()
		delete(s.watched, p.Key())
		s.watchMu.Unlock()
		return
	}

	p.OnDidDispose(func() {
		s.watcher.Remove(path)
		s.watchMu.Lock()
		delete(s.watched, p.Key())
		s.watchMu.Unlock()
	})
}
