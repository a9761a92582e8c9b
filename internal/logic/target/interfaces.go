package target

import (
	"context"
	"iter"

	"github.com/skillcoder/jobadapter/internal/logic/deployer"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
)

type secretStore interface {
	Save(ctx context.Context, id job.Identity, secrets job.Secrets) error
	Load(ctx context.Context, id job.Identity) (job.Secrets, error)
}

type deployEngine interface {
	Deploy(ctx context.Context, req deployer.DeployRequest) (job.Record, error)
	Delete(ctx context.Context, id job.Identity) error
	Exists(ctx context.Context, id job.Identity) (bool, error)
}

type jobMonitor interface {
	ListJobs(ctx context.Context) (iter.Seq[job.Record], error)
	CheckJobCondition(ctx context.Context, rec job.Record, deploymentTimestamp int64, onAlive func(), logsOnError bool) error
	ReadRecentLogs(ctx context.Context, id job.Identity, tail int) (string, error)
}

type logSessions interface {
	Create(ctx context.Context, sessionID string, target logstream.Target, onLine logstream.LineHandler) error
	Close(sessionID string)
	Done(sessionID string) <-chan struct{}
}
