package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/MrWong99/werkit/internal/app"
	"github.com/MrWong99/werkit/internal/config"
	"github.com/MrWong99/werkit/internal/observe"
)

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func serveCmd(rf *rootFlags) *cobra.Command {
	var (
		configPath  string
		listenAddr  string
		sampleRatio float64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scoring HTTP service",
		Long: `Run the scoring HTTP service.

The config file is watched; scoring, phonetic, batch and log level changes
apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, rf, configPath, listenAddr, sampleRatio)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file (defaults when empty)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override server.listen_addr")
	cmd.Flags().Float64Var(&sampleRatio, "trace-sample-ratio", 0, "fraction of new traces to sample (0 = all)")
	return cmd
}

func runServe(cmd *cobra.Command, rf *rootFlags, configPath, listenAddr string, sampleRatio float64) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("config file %q not found", configPath)
			}
			return err
		}
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	// The config file sets the level unless the flag was given.
	if !cmd.Flags().Changed("log-level") {
		rf.level.Set(cfg.Server.LogLevel.Level())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "werkit",
		ServiceVersion: version,
		Registerer:     reg,
		SampleRatio:    sampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	slog.Info("werkit starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"merge_limit", cfg.Scoring.MergeLimit,
		"phonetic", cfg.Phonetic.Enabled,
	)

	opts := []app.Option{
		app.WithVersion(version),
		app.WithLevelVar(rf.level),
		app.WithGatherer(reg),
		app.WithCloser(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownTelemetry(sctx)
		}),
	}
	if configPath != "" {
		opts = append(opts, app.WithConfigPath(configPath))
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		_ = shutdownTelemetry(context.Background())
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}
