package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/alert"
	"github.com/hazz-dev/devprobe/internal/dashboard"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/scheduler"
	"github.com/hazz-dev/devprobe/internal/server"
	"github.com/hazz-dev/devprobe/internal/storage"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API, dashboard and background monitoring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}

func runServe(parent context.Context, addr string) error {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Load config
	cfg, err := loadConfig(cfgFile, true)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Address = addr
	}

	// 2. Logger, telemetry, presets and engine
	a, err := newApp(parent, cfg, os.Stdout)
	if err != nil {
		return err
	}
	logger := a.logger
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(ctx)
	}()
	logger.Info("config loaded", zap.String("path", cfgFile), zap.Strings("presets", a.presets.List()))

	// 3. Open in-memory history
	db, err := storage.Open(storage.InMemory)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// 4. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 5. Build scheduler and alerter
	var sched *scheduler.Scheduler
	var alerter *alert.Alerter
	if cfg.Monitoring.Enabled {
		schedule, err := scheduler.ParseSchedule(cfg.Monitoring.Schedule, cfg.Monitoring.Interval.Duration)
		if err != nil {
			return err
		}
		sched = scheduler.New(a.engine, db, scheduler.Options{
			Presets:  cfg.Monitoring.Presets,
			Schedule: schedule,
			Timeouts: engine.Timeouts{
				PerCheck: cfg.Checks.Timeout.Duration,
				Overall:  cfg.Checks.OverallTimeout.Duration,
			},
			Retention:      cfg.History.Retention.Duration,
			KeepPerService: cfg.History.Limit,
			SlowThreshold:  cfg.Monitoring.ResponseTimeWarning.Duration,
		}, logger)

		if cfg.Notifications.Webhook.URL != "" {
			alerter = alert.New(cfg.Notifications.Webhook.URL, cfg.Notifications.Webhook.Cooldown.Duration, logger)
			sched.SetOnResult(alerter.Notify)
		}
	}

	// 6. Build API server with dashboard and metrics
	opts := []server.Option{
		server.WithConfig(cfg),
		server.WithStatic(dashboard.Handler()),
	}
	if h := a.telemetry.MetricsHandler(); h != nil {
		opts = append(opts, server.WithMetricsHandler(h))
	}
	apiServer := server.New(a.engine, a.presets, db, logger, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Start scheduler
	if sched != nil {
		sched.Start(ctx)
		logger.Info("monitoring started", zap.Strings("presets", cfg.Monitoring.Presets))
	}

	// 8. Start HTTP server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 9. Wait for signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		if sched != nil {
			sched.Wait()
		}
		return fmt.Errorf("HTTP server: %w", err)
	}

	// 10. Graceful shutdown
	if sched != nil {
		sched.Wait()
	}
	if alerter != nil {
		alerter.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
