package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/metrics"
	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// Counts is the number of jobs per status on one target.
type Counts map[job.Status]int

// Service periodically lists the jobs of every target and publishes the
// per-status counts as gauges.
type Service struct {
	logger        *slog.Logger
	targets       map[string]Lister
	schedule      Schedule
	ready         chan struct{}
	doneCh        chan struct{}
	stopCh        chan struct{}
	started       atomic.Bool
	inShutdown    atomic.Bool
	mu            sync.RWMutex
	lastSurveyEnd time.Time
	lastCounts    map[string]Counts
	now           func() time.Time
}

func New(
	logger *slog.Logger,
	schedule Schedule,
	targets map[string]Lister,
) *Service {
	return &Service{
		logger:     logger.With("component", "survey"),
		targets:    targets,
		schedule:   schedule,
		ready:      make(chan struct{}),
		doneCh:     make(chan struct{}),
		stopCh:     make(chan struct{}),
		lastCounts: make(map[string]Counts),
		now:        time.Now,
	}
}

func (s *Service) Name() string {
	return "job-survey"
}

func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "survey service is shutting down, skipping start")

		return nil
	}

	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	go s.RunCommand(ctx)

	return nil
}

// Ping fails until the first survey completes and when two scheduled
// surveys were missed since the last one.
func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
	default:
		return ErrNotReady
	}

	last := s.lastEnd()
	deadline := s.schedule.Next(s.schedule.Next(last))

	if now := s.now(); now.After(deadline) {
		return fmt.Errorf("%w: %s ago", ErrStaleSurvey, now.Sub(last).Round(time.Second))
	}

	return nil
}

// PingerCritical keeps a slow survey from failing the liveness probe.
func (s *Service) PingerCritical() bool {
	return false
}

// Shutdown stops the survey loop, cancelling a running survey, and waits for it to exit.
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
		return fmt.Errorf("shutdown context done before survey loop exited: %w", ctx.Err())
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "survey loop exited")
	}

	return nil
}

// SurveyCommand runs one survey over all targets. A failing target keeps its
// previous gauges and does not stop the others.
func (s *Service) SurveyCommand(ctx context.Context) (map[string]Counts, error) {
	result := make(map[string]Counts, len(s.targets))

	var errs error

	for _, name := range slices.Sorted(maps.Keys(s.targets)) {
		if ctx.Err() != nil {
			return result, fmt.Errorf("survey: %w", ctx.Err())
		}

		counts, err := s.surveyTarget(ctx, name, s.targets[name])
		if err != nil {
			s.logger.ErrorContext(ctx, "survey target failed", "target", name, "reason", err)

			errs = errors.Join(errs, fmt.Errorf("survey target %s: %w", name, err))

			continue
		}

		result[name] = counts
	}

	s.mu.Lock()
	maps.Copy(s.lastCounts, result)
	s.mu.Unlock()

	return result, errs
}

func (s *Service) surveyTarget(ctx context.Context, name string, lister Lister) (Counts, error) {
	records, err := lister.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	counts := Counts{job.StatusRunning: 0, job.StatusError: 0}
	for rec := range records {
		counts[rec.Status]++
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}

	metrics.SetJobsObserved(name, byStatus)

	s.logger.DebugContext(ctx, "target surveyed",
		"target", name,
		"running", counts[job.StatusRunning],
		"error", counts[job.StatusError],
	)

	return counts, nil
}

// LastCounts returns the counts of the last successful survey of every target.
func (s *Service) LastCounts() map[string]Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Counts, len(s.lastCounts))
	for name, counts := range s.lastCounts {
		out[name] = maps.Clone(counts)
	}

	return out
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// RunCommand surveys immediately and then at every scheduled occurrence until
// ctx is done or the service is shut down.
func (s *Service) RunCommand(parent context.Context) {
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

	var readyOnce sync.Once

	for {
		if _, err := s.SurveyCommand(ctx); err != nil {
			s.logger.ErrorContext(ctx, "survey error", "reason", err)
		}

		s.setLastEnd(s.now())
		readyOnce.Do(func() { close(s.ready) })

		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "terminating survey loop")

			return
		}

		wait := s.schedule.Next(s.now()).Sub(s.now())
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.logger.InfoContext(ctx, "terminating survey loop")

			return
		}
	}
}

func (s *Service) lastEnd() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSurveyEnd
}

func (s *Service) setLastEnd(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSurveyEnd = at
}
