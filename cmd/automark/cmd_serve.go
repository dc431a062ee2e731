package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JohnPlummer/essay-marker/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the marking API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (default AUTOMARK_HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsys := afero.NewOsFs()
	m, gen, err := newMarker(ctx, appConfig, fsys)
	if err != nil {
		return err
	}

	runs, db, err := openRuns(appConfig)
	if err != nil {
		return err
	}
	defer closeDB(db)

	srv := server.New(server.Dependencies{
		Marker: m,
		Runs:   runs,
		Health: gen,
		FS:     fsys,
		Inputs: server.Inputs{
			EssaysDir:    appConfig.EssaysDir,
			RubricDir:    appConfig.RubricDir,
			GuidanceFile: appConfig.GuidanceFile,
		},
		Logger: slog.Default(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(orDefault(serveFlags.addr, appConfig.HTTPAddr))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
