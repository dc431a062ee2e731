package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JohnPlummer/essay-marker/marker"
)

var showFlags struct {
	raw   bool
	list  bool
	width int
}

var showCmd = &cobra.Command{
	Use:   "show [essay]",
	Short: "Print stored feedback for an essay, or the class summary",
	Long: `Without an argument prints the class summary. With --list prints the names
of all stored feedback. Output is rendered as terminal Markdown unless --raw.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	f := showCmd.Flags()
	f.BoolVar(&showFlags.raw, "raw", false, "Print the stored text without rendering")
	f.IntVar(&showFlags.width, "width", 80, "Word wrap width for rendered output")
	f.BoolVar(&showFlags.list, "list", false, "List stored feedback names")
}

func runShow(cmd *cobra.Command, args []string) error {
	feedback := marker.NewFeedbackStore(afero.NewOsFs(), appConfig.OutputDir)
	out := cmd.OutOrStdout()

	if showFlags.list {
		names, err := feedback.ListFeedback()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	var (
		text string
		err  error
	)
	if len(args) == 0 {
		text, err = feedback.ReadClassSummary()
	} else {
		text, err = feedback.ReadFeedback(args[0])
	}
	if err != nil {
		return err
	}

	if showFlags.raw {
		fmt.Fprintln(out, text)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(showFlags.width),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return fmt.Errorf("render feedback: %w", err)
	}
	fmt.Fprint(out, rendered)
	return nil
}
