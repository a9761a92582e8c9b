package app

import (
	"context"
	"os"
	"time"

	"github.com/skillcoder/jobadapter/internal/infra/appstate"
	"github.com/skillcoder/jobadapter/internal/infra/pinger"
	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
)

// appstater defines the interface for application state management
type appstater interface {
	RegisterPinger(pinger pinger.Pinger) error
	RegisterShutdowner(shutdowner shutdown.Shutdowner)
	Quit() <-chan os.Signal
	SetStarting(ctx context.Context) error
	SetRunning(ctx context.Context) error
	GetState() appstate.State
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetReadyTime() *time.Time
	GetTerminateTime() *time.Time
	GetAllStats() map[string]*pinger.Statistics
	IsHealthy() bool
	IsReady() bool
	Shutdown(ctx context.Context) error
}

type signalHandler interface {
	HandleSignals(ctx context.Context, cancel func())
}

// component is a long-running part of the process started by Run.
type component interface {
	Start(ctx context.Context) error
	Ready() <-chan struct{}
	shutdown.Shutdowner
}

type appServer interface {
	pinger.Pinger
	component
}

var _ appstater = (*appstate.AppState)(nil)
