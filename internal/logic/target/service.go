package target

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
	"github.com/skillcoder/jobadapter/internal/logic/monitor"
)

const pingTimeout = 5 * time.Second

// DeployOptions extend a deployment with the steps around it.
type DeployOptions struct {
	// Secrets are stored before the job is deployed when set.
	Secrets *job.Secrets
	// Wait blocks until the deployed version reports it is operational.
	Wait bool
}

// Service bundles the job operations of one infrastructure target.
type Service struct {
	name    string
	logger  *slog.Logger
	channel job.Channel
	secrets secretStore
	engine  deployEngine
	monitor jobMonitor
	logs    logSessions
}

func New(
	logger *slog.Logger,
	name string,
	channel job.Channel,
	secrets secretStore,
	engine deployEngine,
	monitor jobMonitor,
	logs logSessions,
) *Service {
	return &Service{
		name:    name,
		logger:  logger.With("target", name),
		channel: channel,
		secrets: secrets,
		engine:  engine,
		monitor: monitor,
		logs:    logs,
	}
}

// Name identifies the target as a dependency check.
func (s *Service) Name() string {
	return "target/" + s.name
}

func (s *Service) TargetName() string {
	return s.name
}

func (s *Service) Transport() job.Transport {
	return s.channel.Transport()
}

func (s *Service) Namespace() string {
	return s.channel.Namespace()
}

func (s *Service) Ping(ctx context.Context) error {
	if err := s.channel.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.name, err)
	}

	return nil
}

func (s *Service) PingerTimeout() time.Duration {
	return pingTimeout
}

// PingerCritical keeps an unreachable target from restarting the adapter.
func (s *Service) PingerCritical() bool {
	return false
}

func (s *Service) ListJobs(ctx context.Context) (iter.Seq[job.Record], error) {
	return s.monitor.ListJobs(ctx)
}

// Deploy stores the secrets, deploys the job and optionally waits for it. When
// waiting fails the deployed record is returned together with the error.
func (s *Service) Deploy(ctx context.Context, req deployer.DeployRequest, opts DeployOptions) (job.Record, error) {
	id := req.Manifest.Identity()

	if opts.Secrets != nil {
		if err := s.secrets.Save(ctx, id, *opts.Secrets); err != nil {
			return job.Record{}, fmt.Errorf("save secrets of %s: %w", id, err)
		}
	}

	rec, err := s.engine.Deploy(ctx, req)
	if err != nil {
		return job.Record{}, fmt.Errorf("deploy %s: %w", id, err)
	}

	if !opts.Wait {
		return rec, nil
	}

	alive := false

	err = s.monitor.CheckJobCondition(ctx, rec, rec.CreateTime.Unix(), func() { alive = true }, true)
	if err != nil {
		rec.Status = job.StatusError
		rec.Error = err.Error()

		return rec, fmt.Errorf("wait for %s (answered: %t): %w", id, alive, err)
	}

	s.logger.InfoContext(ctx, "job is operational", "job", id.String())

	return rec, nil
}

func (s *Service) Delete(ctx context.Context, id job.Identity) error {
	if err := s.engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	return nil
}

func (s *Service) Exists(ctx context.Context, id job.Identity) (bool, error) {
	return s.engine.Exists(ctx, id)
}

func (s *Service) SaveSecrets(ctx context.Context, id job.Identity, secrets job.Secrets) error {
	return s.secrets.Save(ctx, id, secrets)
}

func (s *Service) LoadSecrets(ctx context.Context, id job.Identity) (job.Secrets, error) {
	return s.secrets.Load(ctx, id)
}

// ReadRecentLogs returns the last tail log lines of the job; a non-positive
// tail means monitor.DefaultLogTail.
func (s *Service) ReadRecentLogs(ctx context.Context, id job.Identity, tail int) (string, error) {
	if tail <= 0 {
		tail = monitor.DefaultLogTail
	}

	return s.monitor.ReadRecentLogs(ctx, id, tail)
}

func (s *Service) OpenLogSession(
	ctx context.Context,
	sessionID string,
	target logstream.Target,
	onLine logstream.LineHandler,
) error {
	return s.logs.Create(ctx, sessionID, target, onLine)
}

func (s *Service) CloseLogSession(sessionID string) {
	s.logs.Close(sessionID)
}

// LogSessionDone is closed once the session task has exited for any reason.
func (s *Service) LogSessionDone(sessionID string) <-chan struct{} {
	return s.logs.Done(sessionID)
}
