// package server runs the loopback HTTP listener that receives the Spotify
// authorization redirect during the connect handshake.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an HTTP handler that knows the path patterns it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router registers handlers, applies middleware, and serves the callback endpoints.
type Router interface {
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Logging returns middleware that logs each callback request at debug level.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("callback request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(started))
		})
	}
}

// CallbackServer is a short-lived HTTP server bound to a loopback address for
// the duration of one OAuth handshake.
type CallbackServer struct {
	addr   string
	router Router
	logger *log.Logger

	srv      *http.Server
	listener net.Listener
}

// NewCallbackServer creates a server for the given loopback address, e.g.
// "127.0.0.1:8080". The address must match the redirect URI registered with
// the provider.
func NewCallbackServer(addr string, router Router, logger *log.Logger) *CallbackServer {
	if logger == nil {
		logger = log.Default()
	}
	return &CallbackServer{
		addr:   addr,
		router: router,
		logger: shared.ComponentLogger(logger, "callback"),
	}
}

// Start binds the listener and begins serving in the background.
// Fails immediately when the port is taken.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server stopped", "error", err)
		}
	}()

	s.logger.Debug("listening for the authorization callback", "addr", s.addr)
	return nil
}

// Addr returns the bound listener address, useful when the configured port is 0.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
