package cmd

import (
	"context"
	"fmt"

	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/spf13/cobra"
)

func init() {
	syncEnv := new(commonFlags)

	var syncCommand = &cobra.Command{
		Use:   "sync [-c config_file] [-d working_dir]",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadRuntime(syncEnv)
			if err != nil {
				return err
			}
			a, err := openEngine(cfg, lg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Shutdown(context.Background()) }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := a.Remote.HealthCheck(ctx); err != nil {
				return err
			}

			report := a.Session.Reconcile(ctx)
			out := cmd.OutOrStdout()
			if report.Skipped {
				fmt.Fprintf(out, "skipped: %s\n", report.SkipReason)
				return code.ErrorPartialSync.WithDetails(report.SkipReason)
			}
			fmt.Fprintf(out, "pushed=%d pulled=%d overwritten=%d unchanged=%d swept=%d failed=%d duration=%s\n",
				report.Pushed, report.Pulled, report.Overwritten, report.Unchanged, report.Swept, report.Failed, report.Duration)
			if report.HasFailures() {
				return code.ErrorPartialSync.WithDetails(fmt.Sprintf("%d notes failed", report.Failed))
			}
			return nil
		},
	}

	rootCmd.AddCommand(syncCommand)
	bindCommonFlags(syncCommand, syncEnv)
}
