// Package retention removes blobs that no retention rule keeps alive.
//
// A sweep runs in up to three phases:
//  1. Rules: each rule, in configured order, expires the matching blobs not
//     accessed since its cutoff. A blob is judged by the first rule that
//     matches it; later rules skip it.
//  2. Orphans: blobs with no owners are removed (RemoveWhenNoOwners).
//  3. Untracked: backend objects with no index row are removed once older
//     than a grace period (RemoveUntracked).
//
// Failures on individual blobs are logged and counted and never abort the
// sweep, so a sweep is safe to re-run until it converges.
package retention

import (
	"context"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/ACT3ai/jfk-blossom-server/pkg/storage"
	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultUntrackedGrace protects objects written moments before their index
// row from the untracked phase.
const DefaultUntrackedGrace = time.Hour

// Index is the part of the metadata index a sweep reads and mutates.
// *index.Index satisfies it.
type Index interface {
	HasBlob(ctx context.Context, hash string) (bool, error)
	RetentionCandidates(ctx context.Context, typePattern string, pubkeys []string) ([]index.Candidate, error)
	OrphanedBlobs(ctx context.Context) ([]string, error)
	RemoveBlobs(ctx context.Context, hashes []string) (int64, error)
}

// Remover deletes blobs across index and backend. *storage.Coordinator
// satisfies it.
type Remover interface {
	Delete(ctx context.Context, hash string) (bool, error)
	RemoveBytes(ctx context.Context, hash string) error
}

var (
	_ Index   = (*index.Index)(nil)
	_ Remover = (*storage.Coordinator)(nil)
)

// Config contains configuration for a Sweeper.
type Config struct {
	// Rules are evaluated in order.
	Rules []Rule

	// RemoveWhenNoOwners removes blobs with no ownership edges.
	RemoveWhenNoOwners bool

	// RemoveUntracked removes backend objects the index has no row for.
	RemoveUntracked bool

	// UntrackedGrace is the minimum age of an untracked object before it is
	// removed (default: 1h).
	UntrackedGrace time.Duration

	// DryRun logs what would be removed without removing anything.
	DryRun bool
}

// Metrics observes completed sweeps.
type Metrics interface {
	ObserveSweep(stats *Stats, err error)
}

// Limiter paces backend removals. Wait blocks until the next removal may
// proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

type noopMetrics struct{}

func (noopMetrics) ObserveSweep(*Stats, error) {}

// Sweeper applies retention to an index and backend.
//
// Thread Safety:
// Prune may be called concurrently with normal traffic. Concurrent Prune
// calls are not coordinated; use a Scheduler to serialize them.
type Sweeper struct {
	index   Index
	remover Remover
	backend backend.Backend
	config  Config
	metrics Metrics
	limiter Limiter
	now     func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithMetrics reports each sweep to m. nil disables reporting.
func WithMetrics(m Metrics) Option {
	return func(s *Sweeper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLimiter paces every removal through l. nil removes without pacing.
func WithLimiter(l Limiter) Option {
	return func(s *Sweeper) { s.limiter = l }
}

// New creates a sweeper.
func New(idx Index, remover Remover, be backend.Backend, cfg Config, opts ...Option) *Sweeper {
	if cfg.UntrackedGrace <= 0 {
		cfg.UntrackedGrace = DefaultUntrackedGrace
	}
	s := &Sweeper{
		index:   idx,
		remover: remover,
		backend: be,
		config:  cfg,
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prune runs one sweep. The returned stats are valid even when err is
// non-nil; err is only returned for failures that stop a phase outright
// (a failed index query or a cancelled context).
func (s *Sweeper) Prune(ctx context.Context) (stats *Stats, err error) {
	start := s.now()
	stats = &Stats{StartTime: start, DryRun: s.config.DryRun}
	defer func() {
		stats.EndTime = s.now()
		s.metrics.ObserveSweep(stats, err)
	}()

	if err := s.applyRules(ctx, start, stats); err != nil {
		return stats, err
	}

	if s.config.RemoveWhenNoOwners {
		if err := s.removeOrphans(ctx, stats); err != nil {
			return stats, err
		}
	}

	if s.config.RemoveUntracked {
		if err := s.removeUntracked(ctx, start, stats); err != nil {
			return stats, err
		}
	}

	logger.Info("Retention: sweep completed: %s", stats.Summary())
	return stats, nil
}

// wait paces the next removal. It also reports cancellation when no limiter
// is set.
func (s *Sweeper) wait(ctx context.Context) error {
	if s.limiter == nil {
		return ctx.Err()
	}
	return s.limiter.Wait(ctx)
}

// ============================================================================
// Phase 1: Rules
// ============================================================================

func (s *Sweeper) applyRules(ctx context.Context, now time.Time, stats *Stats) error {
	checked := mapset.NewThreadUnsafeSet[string]()

	for i, rule := range s.config.Rules {
		cutoff := rule.Expiration.Cutoff(now)

		candidates, err := s.index.RetentionCandidates(ctx, rule.Type, rule.Pubkeys)
		if err != nil {
			return err
		}

		n := 0
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !checked.Add(c.SHA256) {
				continue
			}
			n++
			stats.Checked++

			if c.LastSeen() >= cutoff {
				continue
			}

			if s.config.DryRun {
				logger.Info("Retention: would remove %s type=%s (rule #%d %s)", c.SHA256, c.Type, i, rule)
				stats.Removed++
				stats.FreedBytes += uint64(c.Size)
				continue
			}

			if err := s.wait(ctx); err != nil {
				return err
			}
			logger.Info("Retention: removing %s type=%s (rule #%d %s)", c.SHA256, c.Type, i, rule)
			if _, err := s.remover.Delete(ctx, c.SHA256); err != nil {
				logger.Warn("Retention: failed to remove %s: %v", c.SHA256, err)
				stats.Failed++
				continue
			}
			stats.Removed++
			stats.FreedBytes += uint64(c.Size)
		}

		if n > 0 {
			logger.Debug("Retention: checked %d blobs for rule #%d", n, i)
		}
	}
	return nil
}

// ============================================================================
// Phase 2: Orphans
// ============================================================================

// removeOrphans deletes every ownerless row in one batched index call, then
// releases the bytes and access records of those blobs one by one. A failure
// in the second step leaves bytes with no row, which the untracked phase
// reclaims.
func (s *Sweeper) removeOrphans(ctx context.Context, stats *Stats) error {
	orphans, err := s.index.OrphanedBlobs(ctx)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	if s.config.DryRun {
		logger.Info("Retention: would remove %d blobs with no owners", len(orphans))
		stats.Orphans += uint64(len(orphans))
		return nil
	}

	logger.Info("Retention: removing %d blobs with no owners", len(orphans))

	// Sizes must be read before the bytes go.
	sizes := make(map[string]int64, len(orphans))
	for _, hash := range orphans {
		if size, err := s.backend.GetBlobSize(ctx, hash); err == nil {
			sizes[hash] = size
		}
	}

	removed, err := s.index.RemoveBlobs(ctx, orphans)
	if err != nil {
		return err
	}
	stats.Orphans += uint64(removed)

	for _, hash := range orphans {
		if err := s.wait(ctx); err != nil {
			return err
		}
		if err := s.remover.RemoveBytes(ctx, hash); err != nil {
			logger.Warn("Retention: failed to remove bytes of orphan %s: %v", hash, err)
			stats.Failed++
			continue
		}
		stats.FreedBytes += uint64(sizes[hash])
	}
	return nil
}

// ============================================================================
// Phase 3: Untracked objects
// ============================================================================

func (s *Sweeper) removeUntracked(ctx context.Context, start time.Time, stats *Stats) error {
	if r, ok := s.backend.(backend.Refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			return err
		}
	}

	objects, err := s.backend.ListBlobs(ctx)
	if err != nil {
		return err
	}

	cutoff := start.Add(-s.config.UntrackedGrace)
	seen := mapset.NewThreadUnsafeSet[string]()

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Objects not named by a hash are not ours to remove.
		if obj.Hash == "" || obj.Modified.After(cutoff) || !seen.Add(obj.Hash) {
			continue
		}

		tracked, err := s.index.HasBlob(ctx, obj.Hash)
		if err != nil {
			return err
		}
		if tracked {
			continue
		}

		if s.config.DryRun {
			logger.Info("Retention: would remove untracked object %s", obj.Name)
			stats.Untracked++
			stats.FreedBytes += uint64(obj.Size)
			continue
		}

		if err := s.wait(ctx); err != nil {
			return err
		}
		logger.Info("Retention: removing untracked object %s", obj.Name)
		if err := s.remover.RemoveBytes(ctx, obj.Hash); err != nil {
			logger.Warn("Retention: failed to remove untracked object %s: %v", obj.Name, err)
			stats.Failed++
			continue
		}
		stats.Untracked++
		stats.FreedBytes += uint64(obj.Size)
	}
	return nil
}
