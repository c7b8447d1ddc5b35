package retention

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend/local"
	backendtesting "github.com/ACT3ai/jfk-blossom-server/pkg/backend/testing"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/ACT3ai/jfk-blossom-server/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	idx     *index.Index
	backend *local.Backend
	coord   *storage.Coordinator
	now     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := index.Open(ctx, index.Config{Path: filepath.Join(dir, "index.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	be := local.New(local.Config{Path: filepath.Join(dir, "blobs")})
	require.NoError(t, be.Setup(ctx))

	return &env{
		idx:     idx,
		backend: be,
		coord:   storage.New(idx, be),
		now:     time.Now().Truncate(time.Second),
	}
}

func (e *env) sweeper(cfg Config, opts ...Option) *Sweeper {
	opts = append([]Option{WithClock(func() time.Time { return e.now })}, opts...)
	return New(e.idx, e.coord, e.backend, cfg, opts...)
}

// addBlob stores bytes and an index row uploaded age ago, owned by owners.
func (e *env) addBlob(t *testing.T, tag, blobType string, age time.Duration, owners ...string) string {
	t.Helper()
	ctx := context.Background()
	data := []byte(tag)
	hash := backendtesting.MustWriteBlob(t, e.backend, data, blobType)

	_, err := e.idx.AddBlob(ctx, index.Blob{
		SHA256:   hash,
		Size:     int64(len(data)),
		Type:     blobType,
		Uploaded: e.now.Add(-age).Unix(),
	})
	require.NoError(t, err)

	for _, pk := range owners {
		require.NoError(t, e.idx.AddOwner(ctx, hash, pk))
	}
	return hash
}

func (e *env) assertStored(t *testing.T, hash string, expected bool) {
	t.Helper()
	has, err := e.idx.HasBlob(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, expected, has, "index row presence")
	backendtesting.AssertHasBlob(t, e.backend, hash, expected)
}

func mustRule(t *testing.T, typ, expiration string, pubkeys ...string) Rule {
	t.Helper()
	rule, err := ParseRule(typ, expiration, pubkeys)
	require.NoError(t, err)
	return rule
}

func TestPruneExpiresByLastAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	stale := e.addBlob(t, "stale", "image/png", 90000*time.Second, "pk")
	accessed := e.addBlob(t, "accessed", "image/png", 90000*time.Second, "pk")
	require.NoError(t, e.idx.UpdateAccess(ctx, accessed, e.now.Add(-100*time.Second).Unix()))
	text := e.addBlob(t, "text", "text/plain", 90000*time.Second, "pk")

	s := e.sweeper(Config{Rules: []Rule{mustRule(t, "image/*", "86400")}})
	stats, err := s.Prune(ctx)
	require.NoError(t, err)

	e.assertStored(t, stale, false)
	e.assertStored(t, accessed, true)
	e.assertStored(t, text, true)

	assert.Equal(t, uint64(2), stats.Checked)
	assert.Equal(t, uint64(1), stats.Removed)
	assert.Equal(t, uint64(len("stale")), stats.FreedBytes)
	assert.Zero(t, stats.Failed)

	_, ok, err := e.idx.GetAccess(ctx, stale)
	require.NoError(t, err)
	assert.False(t, ok, "access record is forgotten")
}

func TestPruneFirstMatchingRuleWins(t *testing.T) {
	e := newEnv(t)

	hash := e.addBlob(t, "keep", "image/png", 48*time.Hour, "pk")

	s := e.sweeper(Config{Rules: []Rule{
		mustRule(t, "image/png", "1 year"),
		mustRule(t, "*", "1h"),
	}})
	stats, err := s.Prune(context.Background())
	require.NoError(t, err)

	e.assertStored(t, hash, true)
	assert.Equal(t, uint64(1), stats.Checked)
	assert.Zero(t, stats.Removed)
}

func TestPruneWildcardMatchesUntyped(t *testing.T) {
	e := newEnv(t)

	hash := e.addBlob(t, "untyped", "", 48*time.Hour, "pk")

	s := e.sweeper(Config{Rules: []Rule{mustRule(t, "*", "1 day")}})
	_, err := s.Prune(context.Background())
	require.NoError(t, err)

	e.assertStored(t, hash, false)
}

func TestPruneRuleScopedToPubkeys(t *testing.T) {
	e := newEnv(t)

	mine := e.addBlob(t, "mine", "video/mp4", 48*time.Hour, "alice")
	theirs := e.addBlob(t, "theirs", "video/mp4", 48*time.Hour, "bob")
	shared := e.addBlob(t, "shared", "video/mp4", 48*time.Hour, "bob", "alice")

	s := e.sweeper(Config{Rules: []Rule{mustRule(t, "video/*", "1 day", "alice")}})
	stats, err := s.Prune(context.Background())
	require.NoError(t, err)

	e.assertStored(t, mine, false)
	e.assertStored(t, shared, false)
	e.assertStored(t, theirs, true)
	assert.Equal(t, uint64(2), stats.Removed)
}

func TestPruneIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.addBlob(t, "old-1", "image/gif", 72*time.Hour, "pk")
	e.addBlob(t, "old-2", "image/gif", 72*time.Hour)
	kept := e.addBlob(t, "new", "image/gif", time.Minute, "pk")

	s := e.sweeper(Config{
		Rules:              []Rule{mustRule(t, "image/*", "1 day")},
		RemoveWhenNoOwners: true,
	})

	first, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), first.Removed)

	second, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Total())
	assert.Equal(t, uint64(1), second.Checked)

	e.assertStored(t, kept, true)
}

func TestPruneOrphans(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	orphan := e.addBlob(t, "orphan", "text/plain", time.Minute)
	owned := e.addBlob(t, "owned", "text/plain", time.Minute, "pk")
	require.NoError(t, e.idx.UpdateAccess(ctx, orphan, e.now.Unix()))

	stats, err := e.sweeper(Config{RemoveWhenNoOwners: true}).Prune(ctx)
	require.NoError(t, err)

	e.assertStored(t, orphan, false)
	e.assertStored(t, owned, true)
	assert.Equal(t, uint64(1), stats.Orphans)
	assert.Equal(t, uint64(len("orphan")), stats.FreedBytes)

	_, ok, err := e.idx.GetAccess(ctx, orphan)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneOrphansDisabled(t *testing.T) {
	e := newEnv(t)

	orphan := e.addBlob(t, "orphan", "text/plain", time.Minute)

	stats, err := e.sweeper(Config{}).Prune(context.Background())
	require.NoError(t, err)

	e.assertStored(t, orphan, true)
	assert.Zero(t, stats.Total())
}

func TestPruneUntracked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	stray := backendtesting.MustWriteBlob(t, e.backend, []byte("stray"), "text/plain")
	tracked := e.addBlob(t, "tracked", "text/plain", time.Minute, "pk")

	// Files were just written; move the clock past the grace period.
	e.now = time.Now().Add(2 * time.Hour)

	stats, err := e.sweeper(Config{RemoveUntracked: true, UntrackedGrace: time.Hour}).Prune(ctx)
	require.NoError(t, err)

	backendtesting.AssertHasBlob(t, e.backend, stray, false)
	e.assertStored(t, tracked, true)
	assert.Equal(t, uint64(1), stats.Untracked)
}

func TestPruneUntrackedGrace(t *testing.T) {
	e := newEnv(t)

	fresh := backendtesting.MustWriteBlob(t, e.backend, []byte("in flight"), "")
	e.now = time.Now()

	stats, err := e.sweeper(Config{RemoveUntracked: true}).Prune(context.Background())
	require.NoError(t, err)

	backendtesting.AssertHasBlob(t, e.backend, fresh, true)
	assert.Zero(t, stats.Untracked)
}

func TestPruneDryRun(t *testing.T) {
	e := newEnv(t)

	expired := e.addBlob(t, "expired", "image/png", 72*time.Hour, "pk")
	orphan := e.addBlob(t, "orphan", "text/plain", time.Minute)

	stats, err := e.sweeper(Config{
		Rules:              []Rule{mustRule(t, "image/*", "1 day")},
		RemoveWhenNoOwners: true,
		DryRun:             true,
	}).Prune(context.Background())
	require.NoError(t, err)

	e.assertStored(t, expired, true)
	e.assertStored(t, orphan, true)
	assert.Equal(t, uint64(1), stats.Removed)
	assert.Equal(t, uint64(1), stats.Orphans)
	assert.Contains(t, stats.Summary(), "dry run")
}

type failingRemover struct {
	Remover
	fail string
}

func (f failingRemover) Delete(ctx context.Context, hash string) (bool, error) {
	if hash == f.fail {
		return false, errors.New("backend down")
	}
	return f.Remover.Delete(ctx, hash)
}

func TestPruneContinuesPastFailures(t *testing.T) {
	e := newEnv(t)

	broken := e.addBlob(t, "broken", "image/png", 72*time.Hour, "pk")
	fine := e.addBlob(t, "fine", "image/png", 72*time.Hour, "pk")

	s := New(e.idx, failingRemover{Remover: e.coord, fail: broken}, e.backend,
		Config{Rules: []Rule{mustRule(t, "image/*", "1 day")}},
		WithClock(func() time.Time { return e.now }))

	stats, err := s.Prune(context.Background())
	require.NoError(t, err)

	e.assertStored(t, broken, true)
	e.assertStored(t, fine, false)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Removed)
}

func TestPruneCancelled(t *testing.T) {
	e := newEnv(t)
	e.addBlob(t, "old", "image/png", 72*time.Hour, "pk")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.sweeper(Config{Rules: []Rule{mustRule(t, "image/*", "1 day")}}).Prune(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingMetrics struct {
	mu     sync.Mutex
	sweeps []*Stats
}

func (m *recordingMetrics) ObserveSweep(stats *Stats, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = append(m.sweeps, stats)
}

func (m *recordingMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sweeps)
}

func TestPruneReportsMetrics(t *testing.T) {
	e := newEnv(t)
	m := &recordingMetrics{}

	stats, err := e.sweeper(Config{}, WithMetrics(m)).Prune(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, m.count())
	assert.Same(t, stats, m.sweeps[0])
	assert.False(t, stats.EndTime.IsZero())
}

type countingLimiter struct {
	waits int
	err   error
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return l.err
}

func TestPrunePacesRemovals(t *testing.T) {
	e := newEnv(t)

	e.addBlob(t, "old-1", "image/png", 72*time.Hour, "pk")
	e.addBlob(t, "old-2", "image/png", 72*time.Hour, "pk")
	e.addBlob(t, "orphan", "text/plain", time.Minute)

	l := &countingLimiter{}
	stats, err := e.sweeper(Config{
		Rules:              []Rule{mustRule(t, "image/*", "1 day")},
		RemoveWhenNoOwners: true,
	}, WithLimiter(l)).Prune(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, l.waits)
	assert.Equal(t, uint64(3), stats.Total())
}

func TestPruneStopsWhenLimiterFails(t *testing.T) {
	e := newEnv(t)
	hash := e.addBlob(t, "old", "image/png", 72*time.Hour, "pk")

	l := &countingLimiter{err: context.DeadlineExceeded}
	_, err := e.sweeper(Config{Rules: []Rule{mustRule(t, "image/*", "1 day")}}, WithLimiter(l)).Prune(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	e.assertStored(t, hash, true)
}
