package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/config"
	"github.com/hazz-dev/devprobe/internal/engine"
	"github.com/hazz-dev/devprobe/internal/logging"
	"github.com/hazz-dev/devprobe/internal/preset"
	"github.com/hazz-dev/devprobe/internal/telemetry"
	"github.com/hazz-dev/devprobe/internal/version"
)

// app is the wiring shared by every command that runs checks.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Provider
	presets   *preset.Registry
	engine    *engine.Engine
}

// loadConfig reads the config file. With materialize set a missing file is
// written with the defaults; otherwise the defaults are used in memory.
func loadConfig(path string, materialize bool) (*config.Config, error) {
	if !materialize {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newApp builds the logger, telemetry, preset registry and engine from cfg.
// Telemetry output goes to telemetryOut; stdout must not be used when it
// carries a protocol.
func newApp(ctx context.Context, cfg *config.Config, telemetryOut io.Writer) (*app, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Dir)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "devprobe",
		Version:     version.Version,
		Metrics:     cfg.Telemetry.Metrics,
		Tracing:     cfg.Telemetry.Tracing,
		Writer:      telemetryOut,
	})
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	presets, err := preset.New(cfg.Presets)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("building presets: %w", err)
	}

	eng := engine.New(engine.Options{
		PerCheckTimeout: cfg.Checks.Timeout.Duration,
		OverallTimeout:  cfg.Checks.OverallTimeout.Duration,
		MaxConcurrency:  cfg.Checks.MaxConcurrency,
	},
		engine.WithLogger(logger),
		engine.WithPresets(presets),
		engine.WithTracer(tp.Tracer()),
		engine.WithMeter(tp.Meter()),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		telemetry: tp,
		presets:   presets,
		engine:    eng,
	}, nil
}

// close flushes telemetry and logs.
func (a *app) close(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", zap.Error(err))
	}
	a.logger.Sync()
}
