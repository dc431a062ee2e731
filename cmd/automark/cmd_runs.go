package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JohnPlummer/essay-marker/internal/store"
)

var runsFlags struct {
	limit int
}

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded marking runs, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsFlags.limit, "limit", 20, "Maximum number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	runs, db, err := openRuns(appConfig)
	if err != nil {
		return err
	}
	defer closeDB(db)

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		run, err := runs.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}

		fmt.Fprintf(out, "Run:      %s\n", run.ID)
		fmt.Fprintf(out, "Rubric:   %s\n", run.RubricName)
		fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Marked:   %d of %d\n", run.Marked, run.EssayCount)
		if run.ClassSummaryPath != "" {
			fmt.Fprintf(out, "Summary:  %s\n", run.ClassSummaryPath)
		}
		if run.ClassError != "" {
			fmt.Fprintf(out, "Summary error: %s\n", run.ClassError)
		}
		for _, r := range run.Results {
			detail := r.StoragePath
			if r.Status == store.StatusFailed {
				detail = r.Stage + ": " + r.Error
			}
			fmt.Fprintf(out, "  %-30s %-7s %s\n", r.EssayName, r.Status, detail)
		}
		return nil
	}

	list, err := runs.List(cmd.Context(), runsFlags.limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tRUBRIC\tMARKED\tFAILED")
	for _, run := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04"), run.RubricName, run.Marked, run.Failed)
	}
	return tw.Flush()
}
