package logstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/metrics"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/naming"
)

const (
	// DefaultTail is the number of past lines sent when a session opens.
	DefaultTail = 20

	defaultPollInterval      = 3 * time.Second
	defaultDiscoveryInterval = 10 * time.Second
)

// Variant is the way sessions read logs.
type Variant string

const (
	// VariantWatch follows the log stream of every pod and rediscovers pods periodically.
	VariantWatch Variant = "watch"

	// VariantPoll fetches new lines of all pods on a fixed interval.
	VariantPoll Variant = "poll"
)

// Target selects the job whose logs a session streams.
// A Tail of zero means DefaultTail.
type Target struct {
	JobName    string
	JobVersion string
	Tail       int
}

// LineHandler receives every streamed line with the id of its session.
type LineHandler func(sessionID, line string)

type Settings struct {
	PollInterval      time.Duration
	DiscoveryInterval time.Duration
}

type session struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the log streaming sessions of one infrastructure target.
type Manager struct {
	logger   *slog.Logger
	channel  job.Channel
	streamer job.LogStreamer
	variant  Variant
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	wg         sync.WaitGroup
	inShutdown atomic.Bool
}

// New creates a session manager. Channels able to follow pod logs on the
// direct transport get the watch variant, every other channel is polled.
func New(logger *slog.Logger, channel job.Channel, settings Settings) *Manager {
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaultPollInterval
	}

	if settings.DiscoveryInterval <= 0 {
		settings.DiscoveryInterval = defaultDiscoveryInterval
	}

	m := &Manager{
		channel:  channel,
		variant:  VariantPoll,
		settings: settings,
		now:      time.Now,
		sessions: make(map[string]*session),
	}

	if streamer, ok := channel.(job.LogStreamer); ok && channel.Transport() == job.TransportDirect {
		m.streamer = streamer
		m.variant = VariantWatch
	}

	m.logger = logger.With("component", "logstream", "variant", m.variant)

	return m
}

// Name returns the name of the manager component.
func (m *Manager) Name() string {
	return "log-sessions"
}

// Variant reports how sessions of this manager read logs.
func (m *Manager) Variant() Variant {
	return m.variant
}

// Create opens a session streaming the logs of target to onLine. The session
// runs until Close, Shutdown or a failure of its task, independently of ctx.
// A session whose task ended is unregistered, so its id can be reused.
func (m *Manager) Create(ctx context.Context, sessionID string, target Target, onLine LineHandler) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	if target.JobName == "" || target.JobVersion == "" {
		return ErrInvalidTarget
	}

	if target.Tail <= 0 {
		target.Tail = DefaultTail
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inShutdown.Load() {
		return ErrManagerClosed
	}

	if _, ok := m.sessions[sessionID]; ok {
		return fmt.Errorf("%w: %q", ErrSessionExists, sessionID)
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{id: sessionID, cancel: cancel, done: make(chan struct{})}
	m.sessions[sessionID] = s

	resourceName := naming.ResourceName(target.JobName, target.JobVersion)
	logger := m.logger.With("session", sessionID, "resource", resourceName)

	run := m.poll
	if m.variant == VariantWatch {
		run = m.watch
	}

	m.wg.Go(func() {
		defer m.finish(sessionCtx, logger, s)

		run(sessionCtx, logger, s, resourceName, target.Tail, onLine)
	})

	metrics.LogSessionOpened(string(m.variant))
	logger.InfoContext(ctx, "log session opened", "job", target.JobName, "version", target.JobVersion)

	return nil
}

// Close stops a session. Closing an unknown or already closed session does nothing.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return
	}

	s.cancel()

	metrics.LogSessionClosed(string(m.variant))
	m.logger.Info("log session closed", "session", sessionID)
}

// Done returns a channel closed once the task of the session has exited.
// The channel of an unknown session is already closed.
func (m *Manager) Done(sessionID string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s.done
	}

	closed := make(chan struct{})
	close(closed)

	return closed
}

// finish unregisters a session whose task returned on its own.
func (m *Manager) finish(ctx context.Context, logger *slog.Logger, s *session) {
	defer close(s.done)
	defer s.cancel()

	m.mu.Lock()
	current, ok := m.sessions[s.id]
	owned := ok && current == s

	if owned {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()

	if !owned {
		return
	}

	metrics.LogSessionClosed(string(m.variant))
	logger.InfoContext(ctx, "log session ended")
}

// Shutdown closes every session and waits for their tasks to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		metrics.LogSessionClosed(string(m.variant))
	}

	done := make(chan struct{})

	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before log sessions exited: %w", ctx.Err())
	case <-done:
	}

	return nil
}

// push delivers a line unless the session was closed.
func push(ctx context.Context, s *session, onLine LineHandler, line string) bool {
	if ctx.Err() != nil {
		return false
	}

	onLine(s.id, line)

	return true
}

func (m *Manager) logFailure(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if ctx.Err() != nil {
		return
	}

	var cmdErr *job.CommandError
	if errors.As(err, &cmdErr) {
		logger.ErrorContext(ctx, msg,
			"command", cmdErr.Command,
			"exitCode", cmdErr.ExitCode,
			"output", cmdErr.Stdout,
			"reason", err,
		)

		return
	}

	logger.ErrorContext(ctx, msg, "reason", err)
}

func selector(resourceName string) string {
	return job.ResourceLabel + "=" + resourceName
}
