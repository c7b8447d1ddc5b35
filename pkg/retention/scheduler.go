package retention

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
)

// SchedulerConfig contains configuration for periodic sweeps.
type SchedulerConfig struct {
	// Interval is how often to sweep (default: 1h).
	Interval time.Duration

	// Timeout bounds a single sweep (default: 10m).
	Timeout time.Duration

	// RunOnStart sweeps once immediately when started.
	RunOnStart bool
}

// Scheduler runs a Sweeper periodically in the background.
//
// Thread Safety:
// Safe for concurrent use. Sweeps never overlap: RunNow waits for an
// in-progress periodic sweep and vice versa.
type Scheduler struct {
	sweeper *Sweeper
	config  SchedulerConfig

	runMu     sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewScheduler creates a scheduler. Call Start to begin sweeping.
func NewScheduler(sweeper *Sweeper, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	return &Scheduler{
		sweeper: sweeper,
		config:  config,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the background worker. Subsequent calls are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		logger.Info("Starting retention scheduler: interval=%s timeout=%s", s.config.Interval, s.config.Timeout)
		go s.worker()
	})
}

// Stop signals the worker and waits for an in-progress sweep to finish or
// ctx to expire. Safe to call multiple times and before Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if !s.started.Load() {
			return
		}

		logger.Info("Stopping retention scheduler...")
		select {
		case <-s.doneCh:
			logger.Info("Retention scheduler stopped")
		case <-ctx.Done():
			logger.Warn("Retention scheduler shutdown timeout")
			err = ctx.Err()
		}
	})
	return err
}

// RunNow sweeps immediately and blocks until the sweep completes.
func (s *Scheduler) RunNow(ctx context.Context) (*Stats, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logger.Info("Running retention sweep (manual trigger)...")
	return s.sweeper.Prune(ctx)
}

func (s *Scheduler) worker() {
	defer close(s.doneCh)

	if s.config.RunOnStart {
		s.sweep()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) sweep() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	// Abort the sweep promptly on Stop.
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	if _, err := s.sweeper.Prune(ctx); err != nil {
		logger.Error("Retention sweep failed after %v: %v", logger.Since(start), err)
		return
	}
	logger.Debug("Retention sweep took %v", logger.Since(start))
}
