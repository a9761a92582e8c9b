package pinger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
)

// defaultPingTimeout bounds a single ping unless the pinger asks for more.
const defaultPingTimeout = 1 * time.Second

type pingerInfo struct {
	pinger         Pinger
	readyCritical  bool
	healthCritical bool
	timeout        time.Duration
	stats          *stats
}

// Service runs the registered pingers on an interval and keeps their statistics.
type Service struct {
	logger     *slog.Logger
	interval   time.Duration
	observe    ObserveFunc
	mu         sync.RWMutex
	pingers    map[string]*pingerInfo
	ready      chan struct{}
	doneCh     chan struct{}
	stopCh     chan struct{}
	started    atomic.Bool
	inShutdown atomic.Bool
	wg         sync.WaitGroup
	now        func() time.Time
}

var _ shutdown.Shutdowner = (*Service)(nil)

// New creates a pinger service. observe may be nil.
func New(
	logger *slog.Logger,
	interval time.Duration,
	observe ObserveFunc,
) *Service {
	return &Service{
		logger:   logger.With("component", "pinger"),
		interval: interval,
		observe:  observe,
		pingers:  make(map[string]*pingerInfo),
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

func (s *Service) Name() string {
	return "pinger-service"
}

// Register adds a pinger. Pingers are ready and health critical with a one second
// timeout unless they implement the optional capability methods.
func (s *Service) Register(pinger Pinger) error {
	if pinger == nil {
		return fmt.Errorf("register pinger: %w", ErrNilPinger)
	}

	name := pinger.Name()

	info := &pingerInfo{
		pinger:         pinger,
		readyCritical:  true,
		healthCritical: true,
		timeout:        defaultPingTimeout,
		stats:          newStats(),
	}

	if rc, ok := pinger.(readyCriticalPinger); ok {
		info.readyCritical = rc.PingerReadyCritical()
	}

	if hc, ok := pinger.(healthCriticalPinger); ok {
		info.healthCritical = hc.PingerCritical()
	}

	if tp, ok := pinger.(timeoutPinger); ok && tp.PingerTimeout() > 0 {
		info.timeout = tp.PingerTimeout()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pingers[name]; exists {
		return fmt.Errorf("register pinger %s: %w", name, ErrPingerAlreadyRegistered)
	}

	s.pingers[name] = info

	s.logger.Info("pinger registered",
		"name", name,
		"readyCritical", info.readyCritical,
		"healthCritical", info.healthCritical,
		"timeout", info.timeout,
	)

	return nil
}

// Start runs the first round synchronously in the background loop and closes
// Ready once it completes.
func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "pinger service is shutting down, skipping start")

		return nil
	}

	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	go s.run(ctx)

	return nil
}

// Ready is closed after the first ping round.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown stops the loop, cancelling in-flight pings, and waits for it to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopCh)

	if !s.started.Load() {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before pinger loop exited: %w", ctx.Err())
	case <-s.doneCh:
	}

	s.wg.Wait()

	s.logger.InfoContext(ctx, "pinger service shut down")

	return nil
}

// GetStats returns statistics for a specific pinger
func (s *Service) GetStats(name string) (*Statistics, error) {
	s.mu.RLock()
	info, ok := s.pingers[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("get stats %s: %w", name, ErrPingerNotFound)
	}

	return info.statistics(), nil
}

// GetAllStats returns a snapshot of every pinger's statistics.
func (s *Service) GetAllStats() map[string]*Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Statistics, len(s.pingers))
	for name, info := range s.pingers {
		result[name] = info.statistics()
	}

	return result
}

// IsReady reports whether no ready-critical pinger is failing.
func (s *Service) IsReady() bool {
	for _, st := range s.GetAllStats() {
		if !st.IsReady {
			return false
		}
	}

	return true
}

// IsHealthy reports whether no health-critical pinger is failing.
func (s *Service) IsHealthy() bool {
	for _, st := range s.GetAllStats() {
		if !st.IsHealthy {
			return false
		}
	}

	return true
}

func (s *Service) run(parent context.Context) {
	defer close(s.doneCh)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runPingers(ctx)

	close(s.ready)

	for {
		select {
		case <-ticker.C:
			s.runPingers(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "terminating pinger loop")

			return
		}
	}
}

// runPingers pings every registered pinger concurrently and waits for all of them.
func (s *Service) runPingers(ctx context.Context) {
	s.mu.RLock()
	pingers := maps.Clone(s.pingers)
	s.mu.RUnlock()

	var round sync.WaitGroup

	for name, info := range pingers {
		if ctx.Err() != nil {
			break
		}

		s.wg.Add(1)
		round.Go(func() {
			defer s.wg.Done()

			s.ping(ctx, name, info)
		})
	}

	round.Wait()
}

func (s *Service) ping(ctx context.Context, name string, info *pingerInfo) {
	pingCtx, cancel := context.WithTimeout(ctx, info.timeout)
	defer cancel()

	start := s.now()
	err := info.pinger.Ping(pingCtx)
	latency := s.now().Sub(start)

	info.stats.record(s.now(), latency, err)

	if s.observe != nil {
		s.observe(name, latency, err)
	}

	if err != nil {
		s.logger.DebugContext(ctx, "pinger error",
			"name", name,
			"latency", latency,
			"reason", err,
		)

		return
	}

	s.logger.DebugContext(ctx, "pinger success",
		"name", name,
		"latency", latency,
	)
}
