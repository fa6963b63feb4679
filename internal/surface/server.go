package surface

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

// Server serves a Hub over HTTP.
type Server struct {
	hub      *Hub
	addr     string
	logger   *slog.Logger
	listener net.Listener
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Hub    *Hub
	Host   string
	Port   int
	Logger *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		hub:    cfg.Hub,
		addr:   net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		logger: cfg.Logger,
	}
}

// Listen binds the server address and points the hub at it. It returns the
// base URL pages are served from.
func (s *Server) Listen() (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	base := "http://" + ln.Addr().String()
	s.hub.SetBaseURL(base)
	return base, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Recoverer,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
			NoColor: true,
		}),
	)
	s.hub.Routes(r)
	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("starting preview server", "addr", "http://"+s.listener.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down preview server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
