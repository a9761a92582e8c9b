package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skillcoder/jobadapter/internal/config"
	"github.com/skillcoder/jobadapter/internal/infra/shutdown"
	"github.com/skillcoder/jobadapter/internal/logic/job"
	"github.com/skillcoder/jobadapter/internal/logic/logstream"
)

func newLogsCmd(signals <-chan os.Signal, appStart time.Time) *cobra.Command {
	var (
		targetName string
		tail       int
		follow     bool
	)

	cmd := &cobra.Command{
		Use:   "logs NAME VERSION",
		Short: "Print the logs of a job version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(signals, appStart)
			if err != nil {
				return err
			}

			svc, err := env.app.Target(targetName)
			if err != nil {
				return err
			}

			id := job.Identity{Name: args[0], Version: args[1]}

			if !follow {
				logs, err := svc.ReadRecentLogs(cmd.Context(), id, tail)
				if err != nil {
					return fmt.Errorf("read logs of %s: %w", id, err)
				}

				fmt.Fprint(cmd.OutOrStdout(), logs)

				return env.app.Close(cmd.Context())
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go shutdown.New(env.logger, env.appState).HandleSignals(ctx, cancel)

			var mu sync.Mutex

			out := cmd.OutOrStdout()
			sessionID := uuid.NewString()
			target := logstream.Target{JobName: id.Name, JobVersion: id.Version, Tail: tail}

			err = svc.OpenLogSession(ctx, sessionID, target, func(_, line string) {
				mu.Lock()
				defer mu.Unlock()

				fmt.Fprintln(out, line)
			})
			if err != nil {
				return fmt.Errorf("open log session: %w", err)
			}

			<-ctx.Done()

			svc.CloseLogSession(sessionID)

			return env.app.Close(context.WithoutCancel(ctx))
		},
	}

	cmd.Flags().StringVarP(&targetName, "target", "t", config.DefaultTargetName, "infrastructure target")
	cmd.Flags().IntVar(&tail, "tail", 0, "number of recent lines to print, 0 for the default")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new lines until interrupted")

	return cmd
}
