package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillcoder/jobadapter/internal/config"
	"github.com/skillcoder/jobadapter/internal/logic/job"
)

func newJobsCmd(signals <-chan os.Signal, appStart time.Time) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and remove deployed jobs",
	}

	var targetName string

	cmd.PersistentFlags().StringVarP(&targetName, "target", "t", config.DefaultTargetName, "infrastructure target")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the jobs of a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(signals, appStart)
			if err != nil {
				return err
			}

			svc, err := env.app.Target(targetName)
			if err != nil {
				return err
			}

			records, err := svc.ListJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tREPLICAS\tADDRESS\tUPDATED\tERROR")

			for rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					rec.Name,
					rec.Version,
					rec.Status,
					len(rec.ReplicaAddresses),
					rec.InternalAddress,
					rec.UpdateTime.Format(time.RFC3339),
					rec.Error,
				)
			}

			if err := w.Flush(); err != nil {
				return fmt.Errorf("write jobs: %w", err)
			}

			return env.app.Close(cmd.Context())
		},
	}

	remove := &cobra.Command{
		Use:   "delete NAME VERSION",
		Short: "Delete every cluster object of a job version",
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
			if err := svc.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete job %s: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)

			return env.app.Close(cmd.Context())
		},
	}

	cmd.AddCommand(list, remove)

	return cmd
}
