package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/config"
	"github.com/ACT3ai/jfk-blossom-server/pkg/metrics"
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storage core with periodic retention sweeps",
		Long: `Opens the index and backend, then runs the retention sweep on the
configured prune_interval until interrupted. When server.metrics.enabled is
set, Prometheus metrics are served on server.metrics.port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	fmt.Printf("Blossom storage core %s\n", version)

	m := config.InitializeMetrics(cfg)

	a, err := openApp(ctx, cfg, m.Backend)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := metrics.RegisterIndexCollector(a.index); err != nil {
		return fmt.Errorf("failed to register index metrics: %w", err)
	}

	sweeper, err := a.sweeper(false, m.Retention)
	if err != nil {
		return err
	}
	for _, rule := range a.cfg.Storage.Rules {
		logger.Info("Retention rule: type=%s expiration=%s pubkeys=%d", rule.Type, rule.Expiration, len(rule.Pubkeys))
	}

	sched := retention.NewScheduler(sweeper, config.SchedulerConfig(&cfg.Storage))
	sched.Start()

	// Start metrics server in background
	metricsDone := make(chan error, 1)
	if m.Server != nil {
		go func() {
			metricsDone <- m.Server.Start(ctx)
		}()
	}

	// Wait for interrupt signal or metrics server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Storage core is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
	case err := <-metricsDone:
		runErr = err
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("Retention scheduler shutdown error: %v", err)
	}
	if m.Server != nil {
		if err := m.Server.Stop(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error: %v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Storage core stopped gracefully")
	return nil
}
