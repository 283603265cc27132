package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/stefanh12/holfuy/internal/api/http"
	"github.com/stefanh12/holfuy/internal/logging"
	"github.com/stefanh12/holfuy/internal/scheduler"
)

const (
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll on schedule and serve the HTTP API",
	Long: `Start polling the configured stations and serve the latest readings.

The first cycle runs immediately. After that the poll interval adapts: it
doubles after every failed cycle up to the configured maximum and returns
to the default after any success.

The server runs until interrupted (Ctrl+C) or receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg, version)
	logger.Info("config loaded",
		"stations", len(cfg.StationIDs),
		"poll_interval", cfg.PollInterval.String(),
		"max_poll_interval", cfg.MaxPollInterval.String(),
	)

	c := wire(cfg, logger, true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.publisher != nil {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		if err := c.publisher.Connect(connectCtx); err != nil {
			logger.Warn("mqtt broker not reachable yet; will keep retrying", "err", err)
		}
		cancel()
		defer c.publisher.Disconnect()
	}

	sched := scheduler.New(logger, c.poller)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.Deps{
		Stations: c.store,
		Issues:   c.registry,
		Poller:   c.poller,
		Units:    cfg.Units(),
	}, cfg.IsDev())

	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, logger, app, sched, c.poller)
	return nil
}

type (
	httpServer interface {
		ShutdownWithContext(ctx context.Context) error
	}
	stopper interface {
		Stop()
	}
	teardowner interface {
		Teardown()
	}
)

// shutdown stops the HTTP server and the scheduler before tearing the poller
// down, so no cycle can raise issues after they were dismissed.
func shutdown(ctx context.Context, logger *slog.Logger, app httpServer, sched stopper, poller teardowner) {
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("error during shutdown", "err", err)
	}
	sched.Stop()
	poller.Teardown()
}
