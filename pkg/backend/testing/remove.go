package testing

import (
	"bytes"
	"testing"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRemoveTests executes removal tests.
func (suite *BackendTestSuite) RunRemoveTests(t *testing.T) {
	t.Run("Remove_Success", suite.testRemoveSuccess)
	t.Run("Remove_NotFound", suite.testRemoveNotFound)
	t.Run("Remove_ThenRewrite", suite.testRemoveThenRewrite)
}

func (suite *BackendTestSuite) testRemoveSuccess(t *testing.T) {
	b := suite.NewBackend(t)
	hash := MustWriteBlob(t, b, []byte("remove me"), "text/plain")

	require.NoError(t, b.RemoveBlob(testContext(), hash))

	AssertHasBlob(t, b, hash, false)
	_, err := b.ReadBlob(testContext(), hash)
	assert.ErrorIs(t, err, backend.ErrBlobNotFound)
}

func (suite *BackendTestSuite) testRemoveNotFound(t *testing.T) {
	b := suite.NewBackend(t)

	err := b.RemoveBlob(testContext(), HashOf([]byte("never written")))
	assert.ErrorIs(t, err, backend.ErrBlobNotFound)
}

func (suite *BackendTestSuite) testRemoveThenRewrite(t *testing.T) {
	b := suite.NewBackend(t)
	data := PNGBytes("rewrite")
	hash := MustWriteBlob(t, b, data, "image/png")

	require.NoError(t, b.RemoveBlob(testContext(), hash))
	require.NoError(t, b.WriteBlob(testContext(), hash, bytes.NewReader(data), "image/png"))

	assert.Equal(t, data, MustReadBlob(t, b, hash))
}

// RunListTests executes listing tests.
func (suite *BackendTestSuite) RunListTests(t *testing.T) {
	t.Run("List_Empty", suite.testListEmpty)
	t.Run("List_AfterWrites", suite.testListAfterWrites)
}

func (suite *BackendTestSuite) testListEmpty(t *testing.T) {
	b := suite.NewBackend(t)

	objects, err := b.ListBlobs(testContext())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func (suite *BackendTestSuite) testListAfterWrites(t *testing.T) {
	b := suite.NewBackend(t)
	first := MustWriteBlob(t, b, PNGBytes("one"), "image/png")
	second := MustWriteBlob(t, b, []byte("two"), "")

	objects, err := b.ListBlobs(testContext())
	require.NoError(t, err)
	require.Len(t, objects, 2)

	byHash := map[string]backend.ObjectInfo{}
	for _, obj := range objects {
		byHash[obj.Hash] = obj
	}
	require.Contains(t, byHash, first)
	require.Contains(t, byHash, second)
	assert.Equal(t, first+".png", byHash[first].Name)
	assert.Equal(t, second, byHash[second].Name)
	assert.Equal(t, int64(3), byHash[second].Size)
}

// RunValidationTests checks that malformed hashes are rejected before any
// storage access.
func (suite *BackendTestSuite) RunValidationTests(t *testing.T) {
	b := suite.NewBackend(t)
	bad := "../../etc/passwd"

	err := b.WriteBlob(testContext(), bad, bytes.NewReader([]byte("x")), "")
	assert.ErrorIs(t, err, backend.ErrInvalidHash)

	_, err = b.ReadBlob(testContext(), bad)
	assert.ErrorIs(t, err, backend.ErrInvalidHash)

	err = b.RemoveBlob(testContext(), bad)
	assert.ErrorIs(t, err, backend.ErrInvalidHash)
}
