package httpserver

import (
	"context"
	"iter"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/appstate"
	"github.com/skillcoder/jobadapter/internal/infra/pinger"
	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
	"github.com/skillcoder/jobadapter/internal/logic/target"
)

// appstater is an internal interface for application state management
type appstater interface {
	GetState() appstate.State
	IsHealthy() bool
	IsReady() bool
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetReadyTime() *time.Time
	GetTerminateTime() *time.Time
	GetAllStats() map[string]*pinger.Statistics
}

// TargetService is the job API of one infrastructure target.
type TargetService interface {
	TargetName() string
	Transport() job.Transport
	Namespace() string
	ListJobs(ctx context.Context) (iter.Seq[job.Record], error)
	Deploy(ctx context.Context, req deployer.DeployRequest, opts target.DeployOptions) (job.Record, error)
	Delete(ctx context.Context, id job.Identity) error
	Exists(ctx context.Context, id job.Identity) (bool, error)
	SaveSecrets(ctx context.Context, id job.Identity, secrets job.Secrets) error
	LoadSecrets(ctx context.Context, id job.Identity) (job.Secrets, error)
	ReadRecentLogs(ctx context.Context, id job.Identity, tail int) (string, error)
	OpenLogSession(ctx context.Context, sessionID string, target logstream.Target, onLine logstream.LineHandler) error
	CloseLogSession(sessionID string)
	LogSessionDone(sessionID string) <-chan struct{}
}
