package appstate

import (
	"context"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/pinger"
	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
)

type pingerStatsGetter interface {
	GetAllStats() map[string]*pinger.Statistics
}

// pingerServer is the subset of the pinger service the app state drives.
type pingerServer interface {
	Start(ctx context.Context) error
	Ready() <-chan struct{}
	shutdown.Shutdowner
	Register(pinger pinger.Pinger) error
	IsReady() bool
	IsHealthy() bool
	pingerStatsGetter
}

// probeState is what a probe reports besides its verdict.
type probeState interface {
	pingerStatsGetter
	GetState() State
}

type healthChecker interface {
	probeState
	IsHealthy() bool
}

type readyChecker interface {
	probeState
	IsReady() bool
}

type statusGetter interface {
	probeState
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetReadyTime() *time.Time
	GetTerminateTime() *time.Time
}
