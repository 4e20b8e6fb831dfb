package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/sirsim/pkg/client"
	"github.com/rmax-ai/sirsim/pkg/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs through the HTTP API",
	}
	cmd.PersistentFlags().String("api", "http://127.0.0.1:8095", "Base URL of the sirsim API")
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd())
	return cmd
}

func apiClient(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("api")
	c := client.NewClient(url)
	if token := os.Getenv("SIRSIM_API_TOKEN"); token != "" {
		c.SetToken(token)
	}
	return c
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			runs, err := apiClient(cmd).ListRuns(cmd.Context(), store.RunStatus(status), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tTRAJECTORIES\tATTACK RATE\tELAPSED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.Status, r.NTrajectories,
					r.AttackRate, time.Duration(r.ElapsedMS)*time.Millisecond)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("status", "", "Filter by status (completed, failed)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := apiClient(cmd).GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}
}
