package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Outcome of a browser redirect received on the loopback listener
const (
	OAuthSuccess = "success"
	OAuthError   = "error"
)

// ErrServerClosed is returned by Wait when the server shut down first
var ErrServerClosed = errors.New("callback server closed")

// Result is what the browser delivered back to the CLI.
// Token is set for sign-in redirects, OAuth/Reason for provider connects.
type Result struct {
	Token  string
	Email  string
	OAuth  string
	Reason string
}

// Failed reports whether the provider connect failed
func (r Result) Failed() bool {
	return r.OAuth == OAuthError
}

// Server is a loopback HTTP listener that captures the backend's
// redirect after a browser sign-in or provider connect
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	listener   net.Listener
	addr       string
	results    chan Result
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

// NewServer creates a callback server bound to addr once started
func NewServer(addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	s := &Server{
		router:  chi.NewRouter(),
		addr:    addr,
		results: make(chan Result, 1),
		done:    make(chan struct{}),
		logger:  logger.With("component", "callback"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/auth/callback", s.handleAuthCallback)
	s.router.Get("/oauth", s.handleOAuth)
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and returns the base URL to hand to the browser
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	base := "http://" + ln.Addr().String()
	s.logger.Info("waiting for browser redirect", "url", base)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server failed", "error", err)
		}
	}()
	return base, nil
}

// Wait blocks until a redirect arrives, ctx is done or the server shuts down
func (s *Server) Wait(ctx context.Context) (Result, error) {
	select {
	case r := <-s.results:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		return Result{}, ErrServerClosed
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.httpServer != nil {
			s.logger.Info("shutting down callback server")
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}

// deliver hands the first result to Wait; later redirects are ignored
func (s *Server) deliver(r Result) bool {
	select {
	case s.results <- r:
		return true
	default:
		return false
	}
}
