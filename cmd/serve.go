package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the scheduler and the admin API",
		Long: `Seeds the configured sources, registers their cron schedules, starts the
crawl worker pool and serves the admin HTTP API until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := a.Logger
	cfg := a.Config

	seeded, err := a.SeedSources(ctx)
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	logger.Info("sources seeded", zap.Int("count", seeded))

	if cfg.Scheduler.Enabled {
		n, err := a.Scheduler.ScheduleAll(ctx)
		if err != nil {
			return fmt.Errorf("schedule sources: %w", err)
		}
		logger.Info("recurring crawls registered", zap.Int("entries", n))
	}
	a.Scheduler.Start(ctx)

	server := api.NewServer(api.Dependencies{
		Tasks:   a.Scheduler,
		Sources: a.Stores.Sources,
		Jobs:    a.Stores.Jobs,
		Scorer:  a.Scorer,
		Ready:   a.Ready,
	}, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	httpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	schedCtx, cancelSched := context.WithTimeout(context.WithoutCancel(ctx), cfg.Scheduler.ShutdownTimeout)
	defer cancelSched()
	if err := a.Scheduler.Shutdown(schedCtx); err != nil {
		logger.Warn("scheduler shutdown incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return runErr
}
