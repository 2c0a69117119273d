// Package server serves the build output directory over HTTP and logs
// every request.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/unrolled/secure"

	"github.com/hupe1980/elmdev/internal/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Options configures the static server.
type Options struct {
	// Addr is the listen address, e.g. ":4000".
	Addr string

	// Dir is the directory served at "/".
	Dir string

	// RequestLog selects the request log format.
	RequestLog string

	// Out receives text request log lines.
	Out io.Writer

	// NoColor disables colour in the dev request log.
	NoColor bool

	// Logger is used for server lifecycle and json request logs.
	Logger *slog.Logger
}

// Server is a static file server over a single directory.
type Server struct {
	opts    Options
	handler http.Handler

	mu sync.Mutex
	ln net.Listener
}

// New builds the handler chain for opts.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.RequestLog == "" {
		opts.RequestLog = config.RequestLogDev
	}

	return &Server{
		opts:    opts,
		handler: newHandler(opts),
	}
}

func newHandler(opts Options) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").
		Methods(http.MethodGet, http.MethodHead).
		Handler(http.FileServer(http.Dir(opts.Dir)))

	headers := secure.New(secure.Options{
		IsDevelopment:      true,
		ContentTypeNosniff: true,
		FrameDeny:          true,
	})

	reqLog := NewRequestLogger(opts.RequestLog, opts.Out, opts.Logger, opts.NoColor)

	return RequestID(reqLog.Middleware(headers.Handler(r)))
}

// Handler returns the complete handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the listen address. It is called by ListenAndServe when
// the server has not been bound yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}

	s.ln = ln

	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return s.ln.Addr().String()
	}

	return s.opts.Addr
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.opts.Logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.opts.Logger.Info("serving",
		slog.String("addr", ln.Addr().String()),
		slog.String("dir", s.opts.Dir),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.opts.Logger.Debug("server stopped")

	return nil
}
