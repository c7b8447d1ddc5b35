//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	blobs3 "github.com/ACT3ai/jfk-blossom-server/pkg/backend/s3"
	backendtesting "github.com/ACT3ai/jfk-blossom-server/pkg/backend/testing"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
	"github.com/ACT3ai/jfk-blossom-server/pkg/retention"
	"github.com/ACT3ai/jfk-blossom-server/pkg/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bucketCounter atomic.Int64

// localstackConfig returns backend options for the Localstack endpoint in
// LOCALSTACK_ENDPOINT (default http://localhost:4566).
func localstackConfig(t *testing.T, bucket string) blobs3.Config {
	t.Helper()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}
	u, err := url.Parse(endpoint)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return blobs3.Config{
		Endpoint:  u.Hostname(),
		Port:      port,
		UseSSL:    u.Scheme == "https",
		PathStyle: true,
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    bucket,
	}
}

// newBucket creates a uniquely named bucket, emptied and deleted when the
// test ends.
func newBucket(t *testing.T) blobs3.Config {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("blossom-test-%d-%d", time.Now().Unix(), bucketCounter.Add(1))
	cfg := localstackConfig(t, name)

	client, _, err := blobs3.NewClients(ctx, cfg)
	require.NoError(t, err)

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	require.NoError(t, err, "is Localstack running?")

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(name)})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(name), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	})

	return cfg
}

func openBackend(t *testing.T, cfg blobs3.Config) *blobs3.Backend {
	t.Helper()
	b, err := blobs3.Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, b.Setup(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// TestS3Backend_Integration runs the backend conformance suite against a
// real S3-compatible service.
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Backend_Integration(t *testing.T) {
	suite := &backendtesting.BackendTestSuite{
		NewBackend: func(t *testing.T) backend.Backend {
			return openBackend(t, newBucket(t))
		},
	}
	suite.Run(t)
}

// TestS3Backend_ExternalChanges checks that objects written behind the
// backend's back appear after Refresh and are reclaimed by the untracked
// phase of a sweep.
func TestS3Backend_ExternalChanges(t *testing.T) {
	ctx := context.Background()
	cfg := newBucket(t)
	b := openBackend(t, cfg)

	// A second backend on the same bucket plays the external writer.
	other := openBackend(t, cfg)
	hash := backendtesting.MustWriteBlob(t, other, []byte("external"), "text/plain")

	backendtesting.AssertHasBlob(t, b, hash, false)
	require.NoError(t, b.Refresh(ctx))
	backendtesting.AssertHasBlob(t, b, hash, true)

	idx, err := index.Open(ctx, index.Config{Path: filepath.Join(t.TempDir(), "index.db")})
	require.NoError(t, err)
	defer idx.Close()

	sweeper := retention.New(idx, storage.New(idx, b), b, retention.Config{
		RemoveUntracked: true,
		UntrackedGrace:  time.Nanosecond,
	}, retention.WithClock(func() time.Time { return time.Now().Add(time.Minute) }))

	stats, err := sweeper.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Untracked)
	backendtesting.AssertHasBlob(t, b, hash, false)
}

// TestS3Coordinator_Integration commits an upload through the coordinator
// and reads it back.
func TestS3Coordinator_Integration(t *testing.T) {
	ctx := context.Background()
	b := openBackend(t, newBucket(t))

	idx, err := index.Open(ctx, index.Config{Path: filepath.Join(t.TempDir(), "index.db")})
	require.NoError(t, err)
	defer idx.Close()
	coord := storage.New(idx, b)

	file := filepath.Join(t.TempDir(), "image.png")
	data := backendtesting.PNGBytes("integration")
	require.NoError(t, os.WriteFile(file, data, 0o644))

	up, err := storage.StageFile(file)
	require.NoError(t, err)

	blob, err := coord.AddFromUpload(ctx, *up, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.Type)

	ptr, err := coord.SearchStorage(ctx, blob.SHA256)
	require.NoError(t, err)
	rc, err := coord.ReadStoragePointer(ctx, ptr)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	existed, err := coord.Delete(ctx, blob.SHA256)
	require.NoError(t, err)
	assert.True(t, existed)
	backendtesting.AssertHasBlob(t, b, blob.SHA256, false)
}
