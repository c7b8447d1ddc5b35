package testing

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReadWriteTests executes write, read, size and type tests.
func (suite *BackendTestSuite) RunReadWriteTests(t *testing.T) {
	t.Run("Write_ThenRead", suite.testWriteThenRead)
	t.Run("Write_VisibleImmediately", suite.testWriteVisibleImmediately)
	t.Run("Write_Duplicate", suite.testWriteDuplicate)
	t.Run("Write_Untyped", suite.testWriteUntyped)
	t.Run("Read_NotFound", suite.testReadNotFound)
	t.Run("Size_NotFound", suite.testSizeNotFound)
	t.Run("Type_FromWrite", suite.testTypeFromWrite)
}

// ============================================================================
// Write / Read Tests
// ============================================================================

func (suite *BackendTestSuite) testWriteThenRead(t *testing.T) {
	b := suite.NewBackend(t)
	data := []byte("Hello, World!")

	hash := MustWriteBlob(t, b, data, "text/plain")

	assert.Equal(t, data, MustReadBlob(t, b, hash))
}

func (suite *BackendTestSuite) testWriteVisibleImmediately(t *testing.T) {
	b := suite.NewBackend(t)
	data := PNGBytes("visible")
	hash := HashOf(data)

	AssertHasBlob(t, b, hash, false)
	MustWriteBlob(t, b, data, "image/png")
	AssertHasBlob(t, b, hash, true)

	size, err := b.GetBlobSize(testContext(), hash)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func (suite *BackendTestSuite) testWriteDuplicate(t *testing.T) {
	b := suite.NewBackend(t)
	data := PNGBytes("dup")

	hash := MustWriteBlob(t, b, data, "image/png")
	err := b.WriteBlob(testContext(), hash, bytes.NewReader(data), "application/x-other")
	require.NoError(t, err)

	assert.Equal(t, 1, countObjects(t, b, hash), "one canonical object per hash")
	assert.Equal(t, data, MustReadBlob(t, b, hash))
}

func (suite *BackendTestSuite) testWriteUntyped(t *testing.T) {
	b := suite.NewBackend(t)
	data := []byte(strings.Repeat("x", 4096))

	hash := MustWriteBlob(t, b, data, "")

	AssertHasBlob(t, b, hash, true)
	assert.Equal(t, data, MustReadBlob(t, b, hash))
}

func (suite *BackendTestSuite) testReadNotFound(t *testing.T) {
	b := suite.NewBackend(t)

	_, err := b.ReadBlob(testContext(), HashOf([]byte("missing")))
	assert.ErrorIs(t, err, backend.ErrBlobNotFound)
}

func (suite *BackendTestSuite) testSizeNotFound(t *testing.T) {
	b := suite.NewBackend(t)

	_, err := b.GetBlobSize(testContext(), HashOf([]byte("missing")))
	assert.ErrorIs(t, err, backend.ErrBlobNotFound)
}

func (suite *BackendTestSuite) testTypeFromWrite(t *testing.T) {
	b := suite.NewBackend(t)

	hash := MustWriteBlob(t, b, PNGBytes("typed"), "image/png")

	blobType, err := b.GetBlobType(testContext(), hash)
	require.NoError(t, err)
	assert.Equal(t, "image/png", blobType)
}
