package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hazz-dev/devprobe/internal/mcptool"
	"github.com/hazz-dev/devprobe/internal/version"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the check tools to an AI assistant over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(cfgFile, false)
	if err != nil {
		return err
	}

	// stdout carries the protocol.
	a, err := newApp(parent, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(ctx)
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tools := mcptool.New(a.engine, a.presets, a.logger)
	a.logger.Info("mcp server starting", zap.String("version", version.Version))
	return mcptool.Serve(ctx, mcptool.NewServer(tools, version.Version))
}
