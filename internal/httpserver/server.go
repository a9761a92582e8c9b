package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillcoder/jobadapter/internal/infra/appstate"
	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
)

// Server serves the probe endpoints and the jobs API.
type Server struct {
	logger     *slog.Logger
	appState   appstater
	targets    map[string]TargetService
	port       string
	server     *http.Server
	addr       atomic.Pointer[net.TCPAddr]
	ready      chan struct{}
	inShutdown atomic.Bool
}

func New(logger *slog.Logger, appState appstater, port string, targets map[string]TargetService) *Server {
	if port == "" {
		port = defaultPort
	}

	return &Server{
		logger:   logger.With("component", "http-server"),
		appState: appState,
		targets:  targets,
		port:     port,
		ready:    make(chan struct{}),
	}
}

var _ shutdown.Shutdowner = (*Server)(nil)

func (s *Server) Name() string {
	return "http-server"
}

// Ping returns nil once the listener is open.
func (s *Server) Ping(ctx context.Context) error {
	return pingReady(ctx, s.ready)
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/-/healthz", appstate.HandleHealthz(s.logger, s.appState))
	router.Get("/-/readyz", appstate.HandleReadyz(s.logger, s.appState))
	router.Get("/-/status", appstate.HandleStatus(s.logger, s.appState))

	router.Route("/api/v1/targets", func(r chi.Router) {
		r.Use(middleware.Logger)

		r.Get("/", s.handleListTargets)

		r.Route("/{target}/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleDeploy)

			r.Route("/{name}/{version}", func(r chi.Router) {
				r.Get("/", s.handleExists)
				r.Delete("/", s.handleDelete)
				r.Get("/secrets", s.handleLoadSecrets)
				r.Put("/secrets", s.handleSaveSecrets)
				r.Get("/logs", s.handleRecentLogs)
				r.Get("/logs/stream", s.handleStreamLogs)
			})
		})
	})

	return router
}

// Start opens the listener and serves in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "http server is shutting down, skipping start")

		return nil
	}

	s.server = newHTTPServer(s.port, s.Handler())
	// log streams end with the application context
	s.server.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	listener, err := listen(ctx, s.server.Addr)
	if err != nil {
		return err
	}

	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.addr.Store(addr)
	}

	serve(ctx, s.logger, s.server, listener, s.ready)

	return nil
}

// Addr is the bound address once the server started, nil before.
func (s *Server) Addr() *net.TCPAddr {
	return s.addr.Load()
}

// Ready returns a channel that is closed when the HTTP server is ready to serve requests
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	return shutdownServer(ctx, s.logger, s.server)
}
