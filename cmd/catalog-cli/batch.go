package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/auction-catalog/internal/catalog"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect and manage batch enrichment jobs",
	}
	cmd.AddCommand(newBatchListCmd(), newBatchGetCmd(), newBatchCancelCmd(), newBatchResultsCmd())
	return cmd
}

func newBatchListCmd() *cobra.Command {
	var (
		after  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batch jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := pipeline.Batches.List(cmd.Context(), after, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, page)
			}
			printBatchTable(cmd, page.Data, time.Now())
			if page.HasMore {
				cmd.Printf("\nmore: catalog-cli batch list --after %s\n", page.LastID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "List jobs after this batch ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size (1-100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw page as JSON")
	return cmd
}

func newBatchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <batch-id>",
		Short: "Show one batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := pipeline.Batches.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
}

func newBatchCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Request cancellation of a batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := pipeline.Batches.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
}

func newBatchResultsCmd() *cobra.Command {
	var staged bool
	cmd := &cobra.Command{
		Use:   "results <batch-id>",
		Short: "Download a finished batch job's results",
		Long: `Download a finished batch job's results.

With --staged the results are turned back into staged items using the
groups recorded at submission (requires BATCHES_TABLE).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if staged {
				items, err := pipeline.Staging.StagedFromResults(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, items)
			}
			results, err := pipeline.Batches.Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().BoolVar(&staged, "staged", false, "Print staged items instead of raw results")
	return cmd
}

func printBatchTable(cmd *cobra.Command, jobs []catalog.BatchJob, now time.Time) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDONE\tFAILED\tAGE")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			j.ID,
			j.Status,
			strconv.Itoa(j.RequestCounts.Completed)+"/"+strconv.Itoa(j.RequestCounts.Total),
			j.RequestCounts.Failed,
			formatAge(now.Sub(time.Unix(j.CreatedAt, 0))),
		)
	}
	tw.Flush()
}
