package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
)

const defaultMetricsPort = "9090"

// MetricsServer serves the adapter metrics on a dedicated port.
type MetricsServer struct {
	logger     *slog.Logger
	port       string
	gatherer   prometheus.Gatherer
	server     *http.Server
	addr       atomic.Pointer[net.TCPAddr]
	ready      chan struct{}
	inShutdown atomic.Bool
}

// NewMetricsServer creates a metrics server exposing the default registry.
func NewMetricsServer(logger *slog.Logger, port string) *MetricsServer {
	if port == "" {
		port = defaultMetricsPort
	}

	return &MetricsServer{
		logger:   logger.With("component", "metrics-server"),
		port:     port,
		gatherer: prometheus.DefaultGatherer,
		ready:    make(chan struct{}),
	}
}

var _ shutdown.Shutdowner = (*MetricsServer)(nil)

func (s *MetricsServer) Name() string {
	return "metrics-server"
}

func (s *MetricsServer) Ping(ctx context.Context) error {
	return pingReady(ctx, s.ready)
}

// PingerReadyCritical keeps scrapes failing from taking the jobs API out of rotation.
func (s *MetricsServer) PingerReadyCritical() bool {
	return false
}

// Handler serves GET /metrics in the text or OpenMetrics format.
func (s *MetricsServer) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return router
}

// Start opens the listener and serves in a goroutine.
func (s *MetricsServer) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "metrics server is shutting down, skipping start")

		return nil
	}

	s.server = newHTTPServer(s.port, s.Handler())

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
func (s *MetricsServer) Addr() *net.TCPAddr {
	return s.addr.Load()
}

func (s *MetricsServer) Ready() <-chan struct{} {
	return s.ready
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	return shutdownServer(ctx, s.logger, s.server)
}
