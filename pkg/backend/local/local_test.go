package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	backendtesting "github.com/ACT3ai/jfk-blossom-server/pkg/backend/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(Config{Path: filepath.Join(t.TempDir(), "blobs")})
	require.NoError(t, b.Setup(context.Background()))
	return b
}

func TestLocalBackend(t *testing.T) {
	suite := &backendtesting.BackendTestSuite{
		NewBackend: func(t *testing.T) backend.Backend {
			return newTestBackend(t)
		},
	}
	suite.Run(t)
}

func TestSetupCreatesDirectories(t *testing.T) {
	b := newTestBackend(t)

	for _, dir := range []string{b.root, b.tmp} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSetupUnwritableRoot(t *testing.T) {
	parent := t.TempDir()
	file := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	b := New(Config{Path: file})
	err := b.Setup(context.Background())
	assert.ErrorIs(t, err, backend.ErrBackendUnreachable)
}

func TestFailedWriteLeavesNothing(t *testing.T) {
	b := newTestBackend(t)
	hash := backendtesting.HashOf([]byte("partial"))

	r := io.MultiReader(
		io.LimitReader(backendtesting.ZeroReader{}, 1024),
		iotest.ErrReader(errors.New("connection reset")),
	)
	err := b.WriteBlob(context.Background(), hash, r, "image/png")
	require.Error(t, err)

	backendtesting.AssertHasBlob(t, b, hash, false)

	staged, err := os.ReadDir(b.tmp)
	require.NoError(t, err)
	assert.Empty(t, staged, "temp file must be cleaned up")
}

func TestWriteCancelledContext(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.WriteBlob(ctx, backendtesting.HashOf([]byte("x")), io.LimitReader(backendtesting.ZeroReader{}, 10), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetBlobTypeSniffsUntyped(t *testing.T) {
	b := newTestBackend(t)
	hash := backendtesting.MustWriteBlob(t, b, backendtesting.PNGBytes("sniff"), "")

	blobType, err := b.GetBlobType(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, "image/png", blobType)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, os.WriteFile(filepath.Join(b.root, "README"), []byte("hi"), 0644))

	objects, err := b.ListBlobs(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "README", objects[0].Name)
	assert.Empty(t, objects[0].Hash)
}
