package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JohnPlummer/essay-marker/internal/config"
	"github.com/JohnPlummer/essay-marker/marker"
)

var rootFlags struct {
	envFiles  []string
	logLevel  string
	logFormat string
}

// appConfig is loaded before any subcommand runs.
var appConfig config.Config

var rootCmd = &cobra.Command{
	Use:   "automark",
	Short: "Batch essay marking with a hosted language model",
	Long: `automark generates rubric-based feedback for a folder of essays,
stores one feedback file per essay plus a class-wide summary, and serves
the same operations over HTTP.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringSliceVar(&rootFlags.envFiles, "env-file", nil, "Env files to load before reading the environment (default: optional .env)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides AUTOMARK_LOG_LEVEL)")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (overrides AUTOMARK_LOG_FORMAT)")

	rootCmd.AddCommand(markCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.Version = marker.Version
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootFlags.envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.LogFormat = rootFlags.logFormat
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	appConfig = cfg
	return nil
}

func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.LogFormat)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
