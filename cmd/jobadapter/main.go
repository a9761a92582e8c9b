package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillcoder/jobadapter/internal/app"
	"github.com/skillcoder/jobadapter/internal/config"
	"github.com/skillcoder/jobadapter/internal/infra/appstate"
	"github.com/skillcoder/jobadapter/internal/infra/logging"
	"github.com/skillcoder/jobadapter/internal/infra/metrics"
	"github.com/skillcoder/jobadapter/internal/infra/pinger"
	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	appStart := time.Now()
	// Start listening for signals immediately as first thing, before any other initialization
	signals := shutdown.Notify()
	ctx := context.Background()

	root := newRootCmd(signals, appStart)

	err := root.ExecuteContext(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to run", "reason", err)
		// Give the logger some time to flush
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}
}

func newRootCmd(signals <-chan os.Signal, appStart time.Time) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobadapter",
		Short:         "Deploy, monitor and stream logs of jobs running on Kubernetes",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(signals, appStart),
		newJobsCmd(signals, appStart),
		newLogsCmd(signals, appStart),
	)

	return root
}

func newServeCmd(signals <-chan os.Signal, appStart time.Time) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the jobs API, probes and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(signals, appStart)
			if err != nil {
				return err
			}

			err = env.app.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run application: %w", err)
			}

			env.logger.InfoContext(cmd.Context(), "bye")

			return nil
		},
	}
}

// environment is the wired application shared by every command.
type environment struct {
	logger   *slog.Logger
	app      *app.App
	appState *appstate.AppState
}

func newEnvironment(signals <-chan os.Signal, appStart time.Time) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	pingers := pinger.New(logger, cfg.PingerInterval, metrics.ObserveCheck)
	appState := appstate.New(logger, appStart, shutdown.DefaultTerminationFile, signals, pingers)

	application, err := app.New(logger, cfg, appState, pingers)
	if err != nil {
		return nil, fmt.Errorf("new application: %w", err)
	}

	return &environment{
		logger:   logger,
		app:      application,
		appState: appState,
	}, nil
}
