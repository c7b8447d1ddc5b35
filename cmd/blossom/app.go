package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/config"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
	"github.com/ACT3ai/jfk-blossom-server/pkg/storage"
)

// app holds the storage components built from a configuration.
type app struct {
	cfg     *config.Config
	index   *index.Index
	backend backend.Backend
	coord   *storage.Coordinator
}

// openApp opens the index, creates and sets up the backend and wires the
// coordinator. Setup failures are fatal; the caller must not serve without
// a reachable backend.
func openApp(ctx context.Context, cfg *config.Config, m backend.Metrics) (*app, error) {
	idx, err := config.OpenIndex(ctx, &cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	be, err := config.CreateBackend(ctx, &cfg.Storage, m)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	if err := be.Setup(ctx); err != nil {
		_ = be.Close()
		_ = idx.Close()
		return nil, fmt.Errorf("failed to set up %s backend: %w", cfg.Storage.Backend, err)
	}

	return &app{
		cfg:     cfg,
		index:   idx,
		backend: be,
		coord:   storage.New(idx, be),
	}, nil
}

// sweeper builds a retention sweeper from the storage configuration.
func (a *app) sweeper(dryRun bool, m retention.Metrics) (*retention.Sweeper, error) {
	rc, err := config.RetentionConfig(&a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	rc.DryRun = dryRun
	return retention.New(a.index, a.coord, a.backend, rc,
		retention.WithMetrics(m),
		retention.WithLimiter(config.CreateRateLimiter(&a.cfg.Storage)),
	), nil
}

func (a *app) Close() error {
	var errs []error
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if err := a.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Shutdown: %v", err)
		return err
	}
	return nil
}

// withApp loads the configuration, opens the app and runs fn against it.
func withApp(ctx context.Context, g *globalFlags, fn func(a *app) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
