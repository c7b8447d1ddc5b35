package testing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// HashOf returns the hex sha256 of data.
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PNGBytes returns a minimal payload starting with the PNG signature,
// followed by tag so callers can make distinct blobs.
func PNGBytes(tag string) []byte {
	sig := []byte("\x89PNG\r\n\x1a\n")
	return append(sig, []byte(tag)...)
}

// MustWriteBlob writes data under its own hash and returns the hash.
func MustWriteBlob(t *testing.T, b backend.Backend, data []byte, mimeType string) string {
	t.Helper()
	hash := HashOf(data)
	err := b.WriteBlob(testContext(), hash, bytes.NewReader(data), mimeType)
	require.NoError(t, err, "WriteBlob should succeed")
	return hash
}

// MustReadBlob reads the full object for hash.
func MustReadBlob(t *testing.T, b backend.Backend, hash string) []byte {
	t.Helper()
	reader, err := b.ReadBlob(testContext(), hash)
	require.NoError(t, err, "ReadBlob should succeed")
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err, "reading blob should succeed")
	return data
}

// AssertHasBlob checks HasBlob for hash.
func AssertHasBlob(t *testing.T, b backend.Backend, hash string, expected bool) {
	t.Helper()
	has, err := b.HasBlob(testContext(), hash)
	require.NoError(t, err, "HasBlob should not error")
	assert.Equal(t, expected, has, "blob existence mismatch")
}

// countObjects returns how many listed objects carry hash.
func countObjects(t *testing.T, b backend.Backend, hash string) int {
	t.Helper()
	objects, err := b.ListBlobs(testContext())
	require.NoError(t, err, "ListBlobs should succeed")
	n := 0
	for _, obj := range objects {
		if obj.Hash == hash {
			n++
		}
	}
	return n
}

// ZeroReader yields an endless stream of zero bytes.
type ZeroReader struct{}

func (ZeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
