// Package s3 implements blob storage on Amazon S3 or S3-compatible object
// storage.
//
// Listing a bucket is slow and paginated, so the backend lists it once at
// Setup and keeps the result in an in-memory object cache. HasBlob,
// GetBlobSize and GetBlobType are answered from the cache alone; only reads,
// writes and deletes talk to the bucket. Writes and deletes made through the
// backend keep the cache current. Objects added or removed behind the
// backend's back are picked up by Refresh, and a read that finds the object
// gone evicts the stale entry.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	backendName = "s3"

	// DefaultRegion is used when Config.Region is empty.
	DefaultRegion = "us-east-1"

	// DefaultMaxRetries is the retry budget for transient S3 failures.
	DefaultMaxRetries = 10
)

// Config contains configuration for the S3 backend.
type Config struct {
	// Endpoint is the host of an S3-compatible service (MinIO, Cubbit DS3,
	// ...). Empty uses AWS.
	Endpoint string

	// Port is appended to Endpoint when non-zero.
	Port int

	// Region defaults to us-east-1.
	Region string

	// AccessKey and SecretKey select static credentials. When either is
	// empty the default AWS credential chain is used.
	AccessKey string
	SecretKey string

	// Bucket must already exist.
	Bucket string

	// PublicURL is the base URL under which objects are publicly served,
	// including the trailing slash. Empty disables redirects.
	PublicURL string

	// UseSSL selects https for the custom endpoint.
	UseSSL bool

	// PathStyle selects path-style addressing (bucket in the path).
	PathStyle bool

	// Accelerate sends object traffic through S3 Transfer Acceleration.
	Accelerate bool

	// MaxRetries is the retry budget for transient failures (default 10).
	MaxRetries int

	// Metrics receives operation observations. nil disables collection.
	Metrics backend.Metrics
}

// Backend stores blobs as objects in an S3 bucket.
//
// Thread Safety:
// Safe for concurrent use. The object cache is guarded by its own lock and
// is owned exclusively by the backend.
type Backend struct {
	data      Client
	control   Client
	bucket    string
	publicURL string
	cache     *objectCache
	metrics   backend.Metrics
}

var (
	_ backend.Backend    = (*Backend)(nil)
	_ backend.Redirector = (*Backend)(nil)
	_ backend.Refresher  = (*Backend)(nil)
)

// New creates an S3 backend using the given clients. control may be nil, in
// which case data handles bucket checks and listings too. Call Setup before
// use.
func New(cfg Config, data, control Client) *Backend {
	if control == nil {
		control = data
	}
	return &Backend{
		data:      data,
		control:   control,
		bucket:    cfg.Bucket,
		publicURL: cfg.PublicURL,
		cache:     newObjectCache(),
		metrics:   backend.OrNoop(cfg.Metrics),
	}
}

// Open builds the S3 clients for cfg and returns a backend using them.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 backend: bucket is required")
	}
	data, control, err := NewClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, data, control), nil
}

func (b *Backend) observe(op string, start time.Time, err error) {
	if errors.Is(err, backend.ErrBlobNotFound) {
		err = nil
	}
	b.metrics.ObserveOperation(backendName, op, time.Since(start), err)
}

// Setup verifies the bucket is reachable and builds the object cache from a
// full listing.
func (b *Backend) Setup(ctx context.Context) error {
	// ========================================================================
	// Step 1: Verify bucket access
	// ========================================================================

	if b.bucket == "" {
		return fmt.Errorf("bucket name is required: %w", backend.ErrBackendUnreachable)
	}

	_, err := b.control.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		if code := apiErrorCode(err); code != "" {
			return fmt.Errorf("failed to access bucket %q (%s): %w", b.bucket, code, backend.ErrBackendUnreachable)
		}
		return fmt.Errorf("failed to access bucket %q: %v: %w", b.bucket, err, backend.ErrBackendUnreachable)
	}

	// ========================================================================
	// Step 2: Populate object cache
	// ========================================================================

	if err := b.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to list bucket %q: %v: %w", b.bucket, err, backend.ErrBackendUnreachable)
	}

	logger.Info("S3 backend ready: bucket=%s objects=%d", b.bucket, b.cache.len())
	return nil
}

// Refresh re-lists the bucket and replaces the object cache wholesale.
func (b *Backend) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { b.observe("list", start, err) }()

	var entries []objectEntry
	paginator := s3.NewListObjectsV2Paginator(b.control, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	})
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		pages++
		for _, obj := range page.Contents {
			entries = append(entries, objectEntry{
				Name:     aws.ToString(obj.Key),
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified),
			})
		}
	}

	b.cache.replace(entries)
	logger.Debug("S3 backend: listed %d objects in %d pages", len(entries), pages)
	return nil
}

// HasBlob reports whether the cache holds an object for hash.
func (b *Backend) HasBlob(ctx context.Context, hash string) (bool, error) {
	if err := backend.ValidateHash(hash); err != nil {
		return false, err
	}
	_, ok := b.cache.first(hash)
	return ok, nil
}

func (b *Backend) lookup(hash string) (objectEntry, error) {
	if err := backend.ValidateHash(hash); err != nil {
		return objectEntry{}, err
	}
	entry, ok := b.cache.first(hash)
	if !ok {
		return objectEntry{}, fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
	}
	return entry, nil
}

// ReadBlob streams the canonical object for hash from the bucket.
func (b *Backend) ReadBlob(ctx context.Context, hash string) (_ io.ReadCloser, err error) {
	start := time.Now()
	defer func() { b.observe("GetObject", start, err) }()

	entry, err := b.lookup(hash)
	if err != nil {
		return nil, err
	}

	out, err := b.data.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(entry.Name),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			// Removed outside the backend; drop the stale entry.
			b.cache.evict(entry.Name)
			logger.Warn("S3 backend: object %s missing from bucket, evicted from cache", entry.Name)
			return nil, fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", entry.Name, err)
	}

	return backend.MeteredReadCloser(out.Body, b.metrics, backendName, "GetObject"), nil
}

// WriteBlob buffers r and uploads it with a single PutObject. If the cache
// already holds an object for hash the write is skipped, so each hash has
// one canonical object.
func (b *Backend) WriteBlob(ctx context.Context, hash string, r io.Reader, mimeType string) (err error) {
	start := time.Now()
	defer func() { b.observe("PutObject", start, err) }()

	if err := backend.ValidateHash(hash); err != nil {
		return err
	}
	if _, ok := b.cache.first(hash); ok {
		return nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to buffer blob: %w", err)
	}

	name := backend.ObjectName(hash, mimeType)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}

	if _, err := b.data.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", name, err)
	}

	b.cache.add(objectEntry{Name: name, Size: int64(len(data)), Modified: time.Now()})
	b.metrics.RecordBytes(backendName, "PutObject", int64(len(data)))
	return nil
}

// GetBlobSize returns the cached size of the canonical object for hash.
func (b *Backend) GetBlobSize(ctx context.Context, hash string) (int64, error) {
	entry, err := b.lookup(hash)
	if err != nil {
		return 0, err
	}
	return entry.Size, nil
}

// GetBlobType derives the type from the canonical object's extension.
func (b *Backend) GetBlobType(ctx context.Context, hash string) (string, error) {
	entry, err := b.lookup(hash)
	if err != nil {
		return "", err
	}
	return backend.TypeFromName(entry.Name), nil
}

// RemoveBlob deletes every cached object for hash from the bucket and the
// cache. Objects the cache does not know about are not touched.
func (b *Backend) RemoveBlob(ctx context.Context, hash string) (err error) {
	start := time.Now()
	defer func() { b.observe("DeleteObject", start, err) }()

	if err := backend.ValidateHash(hash); err != nil {
		return err
	}
	entries := b.cache.entries(hash)
	if len(entries) == 0 {
		return fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
	}

	for _, entry := range entries {
		_, err := b.data.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(entry.Name),
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete object %s: %w", entry.Name, err)
		}
		b.cache.evict(entry.Name)
	}
	return nil
}

// ListBlobs returns the cached listing. Call Refresh first for an
// up-to-date view of the bucket.
func (b *Backend) ListBlobs(ctx context.Context) ([]backend.ObjectInfo, error) {
	entries := b.cache.snapshot()
	objects := make([]backend.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		objects = append(objects, backend.ObjectInfo{
			Name:     e.Name,
			Hash:     backend.HashFromName(e.Name),
			Size:     e.Size,
			Modified: e.Modified,
		})
	}
	return objects, nil
}

// PublicURL returns the public base URL joined with the canonical object
// name for hash.
func (b *Backend) PublicURL(hash string) (string, bool) {
	if b.publicURL == "" {
		return "", false
	}
	entry, ok := b.cache.first(hash)
	if !ok {
		return "", false
	}
	return b.publicURL + entry.Name, true
}

// Close is a no-op; the AWS clients hold no resources needing release.
func (b *Backend) Close() error {
	return nil
}

// apiErrorCode returns the service error code carried by err, if any.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound reports whether err means the object is already gone.
func isNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
