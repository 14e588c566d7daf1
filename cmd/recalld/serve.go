package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/ingest"
	"github.com/fyrsmithlabs/recalld/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inbox watcher daemon",
	Long: `Watch the configured inbox directory and vectorize every text file
dropped into it for the given user. Runs until interrupted.

Examples:
  recalld serve --user alice
  recalld serve --user alice --config /etc/recalld/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer func() { _ = d.logger.Sync() }()

	if d.cfg.Ingest.InboxDir == "" {
		return fmt.Errorf("ingest.inbox_dir is not configured")
	}

	ctx, err := tenantContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:         d.cfg.Telemetry.Enabled,
		Endpoint:        d.cfg.Telemetry.Endpoint,
		Protocol:        d.cfg.Telemetry.Protocol,
		Insecure:        d.cfg.Telemetry.Insecure,
		ServiceVersion:  version,
		SampleRate:      d.cfg.Telemetry.SampleRate,
		MetricInterval:  d.cfg.Telemetry.MetricInterval.Duration(),
		ShutdownTimeout: d.cfg.Telemetry.ShutdownTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			d.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	watcher, err := ingest.NewWatcher(ingest.Config{
		InboxDir:   d.cfg.Ingest.InboxDir,
		Extensions: d.cfg.Ingest.Extensions,
	}, d.files, d.logger)
	if err != nil {
		return err
	}

	d.logger.Info(ctx, "recalld starting",
		zap.String("version", version),
		zap.String("data_dir", d.cfg.DataDir),
		zap.String("inbox", d.cfg.Ingest.InboxDir),
	)

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	d.logger.Info(ctx, "recalld stopped")
	return nil
}
