package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JohnPlummer/essay-marker/marker"
)

var markFlags struct {
	essaysDir      string
	rubricDir      string
	rubric         string
	guidanceFile   string
	noClassSummary bool
	noHistory      bool
	strict         bool
}

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Mark every essay in a folder and write a class summary",
	Long: `Loads *.txt essays, *.md rubrics and the feedback guidance file, generates
feedback for each essay in order and writes it to <output>/<essay>.feedback.txt.
Essays that fail are reported and skipped. When at least one essay succeeds a
class summary is written to <output>/class_overall.feedback.md.`,
	RunE: runMark,
}

func init() {
	f := markCmd.Flags()
	f.StringVar(&markFlags.essaysDir, "essays", "", "Essay folder (default AUTOMARK_ESSAYS_DIR)")
	f.StringVar(&markFlags.rubricDir, "rubric-dir", "", "Rubric folder (default AUTOMARK_RUBRIC_DIR)")
	f.StringVar(&markFlags.rubric, "rubric", "", "Rubric file name to use (default: first in folder)")
	f.StringVar(&markFlags.guidanceFile, "guidance", "", "Feedback guidance file (default AUTOMARK_GUIDANCE_FILE)")
	f.BoolVar(&markFlags.noClassSummary, "no-class-summary", false, "Skip the class summary")
	f.BoolVar(&markFlags.noHistory, "no-history", false, "Do not record the run in the history database")
	f.BoolVar(&markFlags.strict, "strict", false, "Refuse to mark when any essay fails content validation")
}

func runMark(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsys := afero.NewOsFs()
	m, _, err := newMarker(ctx, appConfig, fsys)
	if err != nil {
		return err
	}

	session := marker.NewSession(m)
	err = session.LoadFolders(fsys,
		orDefault(markFlags.essaysDir, appConfig.EssaysDir),
		orDefault(markFlags.rubricDir, appConfig.RubricDir),
		orDefault(markFlags.guidanceFile, appConfig.GuidanceFile))
	if err != nil {
		return fmt.Errorf("load inputs: %w", err)
	}
	if markFlags.rubric != "" {
		if err := session.SelectRubric(markFlags.rubric); err != nil {
			return err
		}
	}

	if err := checkEssays(session.Essays(), markFlags.strict); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := []marker.RunOption{
		marker.WithProgress(func(p marker.Progress) {
			status := "ok"
			if p.Err != nil {
				status = "FAILED: " + p.Err.Error()
			}
			fmt.Fprintf(out, "[%d/%d] %s %s\n", p.Completed, p.Total, p.EssayName, status)
		}),
	}
	if markFlags.noClassSummary {
		opts = append(opts, marker.WithoutClassSummary())
	}

	run, runErr := session.Mark(ctx, opts...)
	if run != nil {
		if !markFlags.noHistory {
			recordRun(cmd, run)
		}
		printRun(cmd, run)
	}
	return runErr
}

// checkEssays reports essays that look wrong before any model call is made.
// Problems are warnings unless strict is set.
func checkEssays(essays []marker.Essay, strict bool) error {
	if len(essays) == 0 {
		return nil
	}

	results, err := marker.ValidateEssays(essays, marker.DefaultValidationOptions())
	for _, r := range results {
		if !r.Valid {
			slog.Warn("Essay failed validation", "essay", r.Name, "issues", r.Issues)
		}
	}
	if err != nil && strict {
		return err
	}
	return nil
}

func recordRun(cmd *cobra.Command, run *marker.Run) {
	runs, db, err := openRuns(appConfig)
	if err != nil {
		slog.Warn("Run history unavailable", "error", err)
		return
	}
	defer closeDB(db)

	if err := runs.Save(cmd.Context(), run); err != nil {
		slog.Warn("Failed to record run", "run_id", run.ID, "error", err)
	}
}

func printRun(cmd *cobra.Command, run *marker.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRun:      %s\n", run.ID)
	fmt.Fprintf(out, "Rubric:   %s\n", run.RubricName)
	fmt.Fprintf(out, "Marked:   %d of %d\n", len(run.Results), run.EssayCount)
	fmt.Fprintf(out, "Duration: %s\n", run.Duration().Round(time.Millisecond))

	if len(run.Failures) > 0 {
		fmt.Fprintf(out, "Failures:\n")
		for _, f := range run.Failures {
			fmt.Fprintf(out, "  %s\n", f.Error())
		}
	}

	switch {
	case run.ClassSummaryPath != "":
		fmt.Fprintf(out, "Class summary: %s\n", run.ClassSummaryPath)
	case run.ClassErr != nil:
		fmt.Fprintf(out, "Class summary failed: %v\n", run.ClassErr)
	}
}
