// package server contains middleware & handlers for the local session proxy
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spt/internal/session"
	"github.com/desertthunder/spt/internal/shared"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own several routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Server is the long-running local proxy: session registry, HTTP surface and idle supervisor.
type Server struct {
	config   shared.ServerConfig
	registry *session.Registry
	idle     *IdleSupervisor
	router   *BasicRouter
	handler  http.Handler
	http     *http.Server
	logger   *log.Logger
}

// New wires a Server from its configuration. Sessions are built from opts.
func New(cfg shared.ServerConfig, opts session.Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}

	idle := NewIdleSupervisor(cfg.InactivityTimeout(), logger)
	registry := session.NewRegistry(opts, idle)

	s := &Server{
		config:   cfg,
		registry: registry,
		idle:     idle,
		router:   NewBasicRouter(),
		logger:   logger,
	}

	s.routes()
	s.handler = Chain(s.router, RequestLogger(logger), Activity(idle))
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) routes() {
	s.router.Handle(http.MethodGet, "/init", http.HandlerFunc(s.handleInit))
	s.router.Handle(http.MethodGet, "/ping", http.HandlerFunc(s.handlePing))
	s.router.Handle(http.MethodGet, "/status", http.HandlerFunc(s.handleStatus))
	s.router.Handler(NewCallbackHandler(s.registry, s.logger))
	s.router.Handler(NewForwardHandler(s.registry, s.logger))
}

// Handler returns the root handler including logging and activity middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Registry exposes the session registry.
func (s *Server) Registry() *session.Registry { return s.registry }

// Run listens on the configured loopback address and serves until ctx ends or the
// process has been idle for the inactivity window.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server running", "addr", "http://"+ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.idle.Run(gctx)
		if err == nil {
			s.logger.Info("server shutting down due to inactivity", "timeout", s.idle.Window())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if serr := s.http.Shutdown(shutdownCtx); serr != nil {
			// connections parked on a browser login never finish on their own
			s.logger.Warn("forcing close of remaining connections", "err", serr)
			s.http.Close()
		}

		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}
