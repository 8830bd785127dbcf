package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var (
		ids   []string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh stale records from BGG",
		Long:  "Fetches the given ids from BGG in batches. Without --force only stale records are fetched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids = splitList(ids)
			if len(ids) == 0 {
				return fmt.Errorf("at least one id is required")
			}

			ctx := cmd.Context()
			container, err := buildContainer(ctx)
			if err != nil {
				return err
			}
			defer closeContainer(container)

			report, err := container.Catalog().Refresh(ctx, ids, force)
			if err != nil {
				return fmt.Errorf("refreshing: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]any{
					"refreshed":  report.RefreshedIDs(),
					"failed_ids": report.FailedIDs(),
					"rejected":   report.RejectedRecords,
					"batches":    report.Batches,
					"partial":    report.Partial(),
				})
			}

			fmt.Fprintf(out, "Refreshed %d record(s) in %d batch(es).\n", len(report.Refreshed), report.Batches)
			if failed := report.FailedIDs(); len(failed) > 0 {
				fmt.Fprintf(out, "Failed ids (retried on next read): %v\n", failed)
			}
			if report.RejectedRecords > 0 {
				fmt.Fprintf(out, "Rejected %d invalid record(s).\n", report.RejectedRecords)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Thing ids to refresh (comma separated or repeated)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refresh every id, fresh or not")
	return cmd
}
