package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JohnPlummer/essay-marker/marker"
)

var streamFlags struct {
	rubricFile   string
	guidanceFile string
}

var streamCmd = &cobra.Command{
	Use:   "stream <essay-file>",
	Short: "Stream feedback for one essay to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runStream,
}

func init() {
	f := streamCmd.Flags()
	f.StringVar(&streamFlags.rubricFile, "rubric", "", "Rubric file (required)")
	f.StringVar(&streamFlags.guidanceFile, "guidance", "", "Feedback guidance file (default AUTOMARK_GUIDANCE_FILE)")

	_ = streamCmd.MarkFlagRequired("rubric")
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsys := afero.NewOsFs()
	essayText, err := afero.ReadFile(fsys, args[0])
	if err != nil {
		return fmt.Errorf("read essay: %w", err)
	}
	rubricText, err := afero.ReadFile(fsys, streamFlags.rubricFile)
	if err != nil {
		return fmt.Errorf("read rubric: %w", err)
	}
	guidance := marker.LoadGuidance(fsys, orDefault(streamFlags.guidanceFile, appConfig.GuidanceFile))
	if guidance == "" {
		return &marker.PreconditionError{Field: "guidance", Err: marker.ErrNoGuidance}
	}

	m, _, err := newMarker(ctx, appConfig, fsys)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	essay := marker.Essay{Name: filepath.Base(args[0]), Text: string(essayText)}
	result, err := m.MarkEssayStreaming(ctx, essay, string(rubricText), guidance, func(fragment string) {
		fmt.Fprint(out, fragment)
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Saved to %s\n", result.StoragePath)
	return nil
}
