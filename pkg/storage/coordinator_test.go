package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend/local"
	backendtesting "github.com/ACT3ai/jfk-blossom-server/pkg/backend/testing"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	idx     *index.Index
	backend *local.Backend
	coord   *Coordinator
	now     time.Time
	staging string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := index.Open(ctx, index.Config{Path: filepath.Join(dir, "index.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	be := local.New(local.Config{Path: filepath.Join(dir, "blobs")})
	require.NoError(t, be.Setup(ctx))

	f := &fixture{
		idx:     idx,
		backend: be,
		now:     time.Unix(1_700_000_000, 0),
		staging: filepath.Join(dir, "staging"),
	}
	require.NoError(t, os.MkdirAll(f.staging, 0o755))

	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.coord = New(idx, be, opts...)
	return f
}

func (f *fixture) stage(t *testing.T, data []byte) *Upload {
	t.Helper()
	up, err := StageReader(f.staging, bytes.NewReader(data))
	require.NoError(t, err)
	return up
}

func TestAddFromUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := backendtesting.PNGBytes("add")

	up := f.stage(t, data)
	blob, err := f.coord.AddFromUpload(ctx, *up, "")
	require.NoError(t, err)

	assert.Equal(t, backendtesting.HashOf(data), blob.SHA256)
	assert.Equal(t, int64(len(data)), blob.Size)
	assert.Equal(t, "image/png", blob.Type)
	assert.Equal(t, f.now.Unix(), blob.Uploaded)

	backendtesting.AssertHasBlob(t, f.backend, blob.SHA256, true)

	ts, ok, err := f.idx.GetAccess(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.now.Unix(), ts)

	_, err = os.Stat(up.Source.(StagedFile).Path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "staged file is discarded after commit")
}

func TestAddFromUploadTypeOverride(t *testing.T) {
	f := newFixture(t)
	up := f.stage(t, []byte("plain bytes"))

	blob, err := f.coord.AddFromUpload(context.Background(), *up, "application/x-custom")
	require.NoError(t, err)
	assert.Equal(t, "application/x-custom", blob.Type)
}

func TestAddFromUploadDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := backendtesting.PNGBytes("dup")

	first, err := f.coord.AddFromUpload(ctx, *f.stage(t, data), "")
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	again := f.stage(t, data)
	second, err := f.coord.AddFromUpload(ctx, *again, "text/plain")
	require.NoError(t, err)

	assert.Equal(t, *first, *second, "existing row is returned unchanged")

	_, err = os.Stat(again.Source.(StagedFile).Path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "duplicate upload is still discarded")

	objects, err := f.backend.ListBlobs(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestAddFromUploadWriteFailureKeepsStaged(t *testing.T) {
	f := newFixture(t)
	up := f.stage(t, []byte("lost"))
	up.SHA256 = "not-a-hash"

	_, err := f.coord.AddFromUpload(context.Background(), *up, "")
	assert.ErrorIs(t, err, backend.ErrInvalidHash)

	_, err = os.Stat(up.Source.(StagedFile).Path)
	assert.NoError(t, err, "staged input survives a failed commit")
}

func TestSearchStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := backendtesting.PNGBytes("search")

	blob, err := f.coord.AddFromUpload(ctx, *f.stage(t, data), "")
	require.NoError(t, err)

	p, err := f.coord.SearchStorage(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.Equal(t, &StoragePointer{Hash: blob.SHA256, Type: "image/png", Size: int64(len(data))}, p)
}

func TestSearchStorageMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.SearchStorage(ctx, backendtesting.HashOf([]byte("nothing")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchStorageIndexOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := backendtesting.HashOf([]byte("ghost"))

	_, err := f.idx.AddBlob(ctx, index.Blob{SHA256: hash, Size: 5, Uploaded: 1})
	require.NoError(t, err)

	_, err = f.coord.SearchStorage(ctx, hash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchStorageBackendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := backendtesting.MustWriteBlob(t, f.backend, []byte("stray"), "")

	_, err := f.coord.SearchStorage(ctx, hash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchStorageFallsBackToBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := backendtesting.PNGBytes("fallback")
	hash := backendtesting.MustWriteBlob(t, f.backend, data, "image/png")

	_, err := f.idx.AddBlob(ctx, index.Blob{SHA256: hash, Uploaded: 1})
	require.NoError(t, err)

	p, err := f.coord.SearchStorage(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "image/png", p.Type)
	assert.Equal(t, int64(len(data)), p.Size)
}

func TestReadStoragePointerRecordsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := backendtesting.PNGBytes("read")

	blob, err := f.coord.AddFromUpload(ctx, *f.stage(t, data), "")
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	p, err := f.coord.SearchStorage(ctx, blob.SHA256)
	require.NoError(t, err)

	rc, err := f.coord.ReadStoragePointer(ctx, p)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)

	ts, ok, err := f.idx.GetAccess(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.now.Unix(), ts)
}

func TestReadStoragePointerWithoutTracking(t *testing.T) {
	f := newFixture(t, WithAccessTracking(false))
	ctx := context.Background()

	blob, err := f.coord.AddFromUpload(ctx, *f.stage(t, []byte("quiet")), "")
	require.NoError(t, err)
	committed := f.now.Unix()

	f.now = f.now.Add(time.Hour)
	rc, err := f.coord.ReadStoragePointer(ctx, &StoragePointer{Hash: blob.SHA256})
	require.NoError(t, err)
	_ = rc.Close()

	ts, _, err := f.idx.GetAccess(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.Equal(t, committed, ts, "reads leave the access record alone")
}

func TestReadStoragePointerMissingBytes(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.ReadStoragePointer(context.Background(), &StoragePointer{Hash: backendtesting.HashOf([]byte("gone"))})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetStorageRedirectLocal(t *testing.T) {
	f := newFixture(t)
	_, ok := f.coord.GetStorageRedirect(&StoragePointer{Hash: backendtesting.HashOf([]byte("x"))})
	assert.False(t, ok, "local backend never redirects")
}

type redirectingBackend struct {
	backend.Backend
}

func (redirectingBackend) PublicURL(hash string) (string, bool) {
	return "https://cdn.example.com/" + hash, true
}

func TestGetStorageRedirect(t *testing.T) {
	f := newFixture(t)
	coord := New(f.idx, redirectingBackend{f.backend})
	hash := backendtesting.HashOf([]byte("x"))

	url, ok := coord.GetStorageRedirect(&StoragePointer{Hash: hash})
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/"+hash, url)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	blob, err := f.coord.AddFromUpload(ctx, *f.stage(t, []byte("doomed")), "")
	require.NoError(t, err)
	require.NoError(t, f.idx.AddOwner(ctx, blob.SHA256, "pk1"))

	removed, err := f.coord.Delete(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.True(t, removed)

	has, err := f.idx.HasBlob(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.False(t, has)

	owners, err := f.idx.ListOwners(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.Equal(t, 0, owners.Cardinality())

	_, ok, err := f.idx.GetAccess(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.False(t, ok)

	backendtesting.AssertHasBlob(t, f.backend, blob.SHA256, false)
}

func TestDeleteUnknown(t *testing.T) {
	f := newFixture(t)
	removed, err := f.coord.Delete(context.Background(), backendtesting.HashOf([]byte("never")))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteBackendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := backendtesting.MustWriteBlob(t, f.backend, []byte("stray"), "")

	removed, err := f.coord.Delete(ctx, hash)
	require.NoError(t, err)
	assert.False(t, removed)
	backendtesting.AssertHasBlob(t, f.backend, hash, false)
}

func TestRemoveBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := backendtesting.MustWriteBlob(t, f.backend, []byte("orphan"), "")
	require.NoError(t, f.idx.UpdateAccess(ctx, hash, 5))

	require.NoError(t, f.coord.RemoveBytes(ctx, hash))
	backendtesting.AssertHasBlob(t, f.backend, hash, false)

	_, ok, err := f.idx.GetAccess(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	// Absent bytes are not an error.
	require.NoError(t, f.coord.RemoveBytes(ctx, hash))
}
