package index

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "index.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testHash(seed string) string {
	return strings.Repeat(seed, 64)[:64]
}

func mustAddBlob(t *testing.T, idx *Index, blob Blob) *Blob {
	t.Helper()
	stored, err := idx.AddBlob(context.Background(), blob)
	require.NoError(t, err)
	return stored
}

func TestOpenAppliesMigrations(t *testing.T) {
	idx := newTestIndex(t)

	plan, err := idx.MigrationPlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plan.AvailableVersion, plan.CurrentVersion)
	assert.Empty(t, plan.Pending)
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	first, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	mustAddBlob(t, first, Blob{SHA256: testHash("a"), Size: 1, Uploaded: 1})
	require.NoError(t, first.Close())

	second, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	has, err := second.HasBlob(ctx, testHash("a"))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPlanFreshDatabase(t *testing.T) {
	plan, err := Plan(context.Background(), Config{Path: filepath.Join(t.TempDir(), "fresh.db")})
	require.NoError(t, err)
	assert.Equal(t, 0, plan.CurrentVersion)
	assert.Len(t, plan.Pending, len(migrations))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestAddBlobFirstWriterWins(t *testing.T) {
	idx := newTestIndex(t)
	hash := testHash("b")

	first := mustAddBlob(t, idx, Blob{SHA256: hash, Size: 10, Type: "image/png", Uploaded: 100})
	second := mustAddBlob(t, idx, Blob{SHA256: hash, Size: 99, Type: "text/plain", Uploaded: 200})

	assert.Equal(t, *first, *second)
	assert.Equal(t, int64(10), second.Size)
	assert.Equal(t, "image/png", second.Type)
	assert.Equal(t, int64(100), second.Uploaded)

	stats, err := idx.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Blobs)
}

func TestAddBlobRejectsInvalid(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddBlob(ctx, Blob{Size: 1})
	assert.Error(t, err)

	_, err = idx.AddBlob(ctx, Blob{SHA256: testHash("c"), Size: -1})
	assert.Error(t, err)
}

func TestGetBlobNotFound(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.GetBlob(context.Background(), testHash("d"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUntypedBlobRoundTrip(t *testing.T) {
	idx := newTestIndex(t)

	stored := mustAddBlob(t, idx, Blob{SHA256: testHash("e"), Size: 3, Uploaded: 5})
	assert.Equal(t, "", stored.Type)
}

func TestRemoveBlobCascadesOwners(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	hash := testHash("f")
	alice, bob := testHash("1"), testHash("2")

	mustAddBlob(t, idx, Blob{SHA256: hash, Size: 1, Uploaded: 1})
	require.NoError(t, idx.AddOwner(ctx, hash, alice))
	require.NoError(t, idx.AddOwner(ctx, hash, bob))

	removed, err := idx.RemoveBlob(ctx, hash)
	require.NoError(t, err)
	assert.True(t, removed)

	for _, pk := range []string{alice, bob} {
		has, err := idx.HasOwner(ctx, hash, pk)
		require.NoError(t, err)
		assert.False(t, has)
	}

	removed, err = idx.RemoveBlob(ctx, hash)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveBlobs(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	hashes := []string{testHash("1"), testHash("2"), testHash("3")}
	for _, h := range hashes {
		mustAddBlob(t, idx, Blob{SHA256: h, Size: 1, Uploaded: 1})
	}

	n, err := idx.RemoveBlobs(ctx, append(hashes[:2:2], testHash("9")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := idx.AllBlobHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testHash("3")}, remaining)

	n, err = idx.RemoveBlobs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOwners(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	hash := testHash("a")
	alice, bob := testHash("1"), testHash("2")

	mustAddBlob(t, idx, Blob{SHA256: hash, Size: 1, Uploaded: 1})

	// Duplicate edges are allowed and collapse in the owner set.
	require.NoError(t, idx.AddOwner(ctx, hash, alice))
	require.NoError(t, idx.AddOwner(ctx, hash, alice))
	require.NoError(t, idx.AddOwner(ctx, hash, bob))

	owners, err := idx.ListOwners(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 2, owners.Cardinality())
	assert.True(t, owners.Contains(alice, bob))

	removed, err := idx.RemoveOwner(ctx, hash, alice)
	require.NoError(t, err)
	assert.True(t, removed)

	has, err := idx.HasOwner(ctx, hash, alice)
	require.NoError(t, err)
	assert.False(t, has)

	removed, err = idx.RemoveOwner(ctx, hash, alice)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAddOwnerRequiresBlob(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.AddOwner(context.Background(), testHash("a"), testHash("1"))
	assert.Error(t, err)
}

func TestGetOwnerBlobsWindow(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	alice := testHash("1")

	for i, seed := range []string{"a", "b", "c"} {
		hash := testHash(seed)
		mustAddBlob(t, idx, Blob{SHA256: hash, Size: 1, Uploaded: int64(100 * (i + 1))})
		require.NoError(t, idx.AddOwner(ctx, hash, alice))
	}
	require.NoError(t, idx.AddOwner(ctx, testHash("a"), alice))

	all, err := idx.GetOwnerBlobs(ctx, alice, OwnerBlobsOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, testHash("a"), all[0].SHA256)
	assert.Equal(t, testHash("c"), all[2].SHA256)

	since, until := int64(200), int64(300)
	window, err := idx.GetOwnerBlobs(ctx, alice, OwnerBlobsOptions{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, testHash("b"), window[0].SHA256)
	assert.Equal(t, testHash("c"), window[1].SHA256)

	none, err := idx.GetOwnerBlobs(ctx, testHash("2"), OwnerBlobsOptions{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccessUpsert(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	hash := testHash("a")

	_, ok, err := idx.GetAccess(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.UpdateAccess(ctx, hash, 10))
	require.NoError(t, idx.UpdateAccess(ctx, hash, 20))

	ts, ok, err := idx.GetAccess(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(20), ts)

	require.NoError(t, idx.ForgetAccess(ctx, hash))
	require.NoError(t, idx.ForgetAccess(ctx, hash))

	_, ok, err = idx.GetAccess(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	mustAddBlob(t, idx, Blob{SHA256: testHash("a"), Size: 10, Uploaded: 1})
	mustAddBlob(t, idx, Blob{SHA256: testHash("b"), Size: 32, Uploaded: 1})
	require.NoError(t, idx.AddOwner(ctx, testHash("a"), testHash("1")))
	require.NoError(t, idx.AddOwner(ctx, testHash("b"), testHash("1")))
	require.NoError(t, idx.AddOwner(ctx, testHash("b"), testHash("2")))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Blobs: 2, Owners: 2, TotalSize: 42}, *stats)
}
