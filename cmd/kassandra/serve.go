package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdallabushnaq/kassandra/internal/api"
	"github.com/abdallabushnaq/kassandra/internal/logging"
	"github.com/abdallabushnaq/kassandra/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the planning API over HTTP",
	Long: `Serve the JSON API, /healthz and /metrics.

Requests name their user in the X-User header. Only one server may serve a
database at a time; a lock file next to the database enforces this.

Settings come from KASSANDRA_SERVER_HOST, KASSANDRA_SERVER_PORT,
KASSANDRA_SERVER_REQUEST_TIMEOUT and KASSANDRA_SERVER_SHUTDOWN_TIMEOUT.`,
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var err error
		if log, err = logging.New(cfg.Logging.Level); err != nil {
			return err
		}
		if err := openPlanner(ctx); err != nil {
			return err
		}

		addr := cfg.ServerAddr()
		lockPath, err := storage.AcquireServerLock(dbPath, addr, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.ReleaseServerLock(lockPath); err != nil {
				log.Warnw("failed to release server lock", "error", err)
			}
		}()

		go pruneEvents(ctx)

		app := api.NewApp(log, api.NewHandler(log, plan), api.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
		})

		serveErr := make(chan error, 1)
		go func() {
			log.Infow("server listening", "addr", addr, "db", dbPath, "version", version)
			serveErr <- app.Listen(addr)
		}()

		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warnw("server shutdown timeout", "timeout", cfg.Server.ShutdownTimeout)
				return nil
			}
			return err
		}
		log.Infow("server stopped")
		return nil
	},
}

// pruneEvents applies the audit retention at startup and once a day
func pruneEvents(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := plan.PruneEvents(ctx, cfg.Audit.RetentionCutoff(time.Now())); err != nil {
			log.Warnw("failed to prune audit events", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
