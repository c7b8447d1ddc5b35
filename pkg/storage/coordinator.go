// Package storage coordinates the metadata index and the byte backend.
//
// The two can fail independently, so every operation orders its steps so
// that a crash part way through leaves a state a later sweep can repair:
//   - commit writes bytes before the index row (worst case: orphaned bytes)
//   - delete removes the index row before the bytes (worst case: orphaned
//     bytes for a hash the index no longer lists)
//   - lookup requires both the row and the bytes
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/internal/logger"
	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/ACT3ai/jfk-blossom-server/pkg/index"
)

// ErrNotFound indicates a blob is not servable: the index has no row for it
// or the backend has no bytes.
var ErrNotFound = errors.New("blob not found")

// Index is the part of the metadata index the coordinator uses.
// *index.Index satisfies it.
type Index interface {
	HasBlob(ctx context.Context, hash string) (bool, error)
	GetBlob(ctx context.Context, hash string) (*index.Blob, error)
	AddBlob(ctx context.Context, blob index.Blob) (*index.Blob, error)
	RemoveBlob(ctx context.Context, hash string) (bool, error)
	UpdateAccess(ctx context.Context, hash string, ts int64) error
	ForgetAccess(ctx context.Context, hash string) error
}

var _ Index = (*index.Index)(nil)

// StoragePointer is a resolved, servable blob.
type StoragePointer struct {
	Hash string
	Type string
	Size int64
}

// Coordinator commits, resolves and deletes blobs across the index and the
// backend.
//
// Thread Safety:
// Safe for concurrent use. It holds no state of its own; atomicity comes
// from single-statement index mutations.
type Coordinator struct {
	index       Index
	backend     backend.Backend
	trackAccess bool
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAccessTracking controls whether reads record an access timestamp.
// Enabled by default.
func WithAccessTracking(enabled bool) Option {
	return func(c *Coordinator) { c.trackAccess = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator over idx and be.
func New(idx Index, be backend.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		index:       idx,
		backend:     be,
		trackAccess: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchStorage resolves hash to a pointer if the index has a row for it and
// the backend holds its bytes. Type and size come from the index row, and
// from the backend when the row lacks them.
func (c *Coordinator) SearchStorage(ctx context.Context, hash string) (*StoragePointer, error) {
	blob, err := c.index.GetBlob(ctx, hash)
	if errors.Is(err, index.ErrNotFound) {
		return nil, fmt.Errorf("blob %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	has, err := c.backend.HasBlob(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check backend for %s: %w", hash, err)
	}
	if !has {
		logger.Warn("Storage: index has %s but backend has no object", hash)
		return nil, fmt.Errorf("blob %s: %w", hash, ErrNotFound)
	}

	p := &StoragePointer{Hash: hash, Type: blob.Type, Size: blob.Size}
	if p.Type == "" {
		if p.Type, err = c.backend.GetBlobType(ctx, hash); err != nil {
			return nil, c.backendErr(hash, err)
		}
	}
	if p.Size == 0 {
		if p.Size, err = c.backend.GetBlobSize(ctx, hash); err != nil {
			return nil, c.backendErr(hash, err)
		}
	}

	logger.Debug("Storage: found %s", hash)
	return p, nil
}

// ReadStoragePointer opens the bytes behind p and records the access.
func (c *Coordinator) ReadStoragePointer(ctx context.Context, p *StoragePointer) (io.ReadCloser, error) {
	rc, err := c.backend.ReadBlob(ctx, p.Hash)
	if err != nil {
		return nil, c.backendErr(p.Hash, err)
	}

	if c.trackAccess {
		if err := c.index.UpdateAccess(ctx, p.Hash, c.now().Unix()); err != nil {
			logger.Warn("Storage: failed to record access for %s: %v", p.Hash, err)
		}
	}
	return rc, nil
}

// GetStorageRedirect returns a public URL for p when the backend can serve
// it directly.
func (c *Coordinator) GetStorageRedirect(p *StoragePointer) (string, bool) {
	r, ok := c.backend.(backend.Redirector)
	if !ok {
		return "", false
	}
	return r.PublicURL(p.Hash)
}

// AddFromUpload commits an upload. typeOverride, when set, replaces the
// upload's own type.
//
// For new content the bytes are written to the backend first, the staged
// input is discarded, then the index row and access record are created.
// For content the index already has, the backend write is skipped, the
// staged input is discarded and the existing row is returned.
//
// If the backend write fails the staged input is left in place so the
// caller can retry.
func (c *Coordinator) AddFromUpload(ctx context.Context, up Upload, typeOverride string) (*index.Blob, error) {
	if err := backend.ValidateHash(up.SHA256); err != nil {
		return nil, err
	}

	blobType := up.Type
	if typeOverride != "" {
		blobType = typeOverride
	}

	exists, err := c.index.HasBlob(ctx, up.SHA256)
	if err != nil {
		return nil, err
	}

	if exists {
		c.discard(up)
		return c.index.GetBlob(ctx, up.SHA256)
	}

	// ========================================================================
	// Step 1: Write bytes
	// ========================================================================

	logger.Info("Storage: saving %s type=%s size=%d", up.SHA256, blobType, up.Size)

	if err := c.write(ctx, up, blobType); err != nil {
		return nil, err
	}
	c.discard(up)

	// ========================================================================
	// Step 2: Record metadata
	// ========================================================================

	now := c.now().Unix()
	blob, err := c.index.AddBlob(ctx, index.Blob{
		SHA256:   up.SHA256,
		Size:     up.Size,
		Type:     blobType,
		Uploaded: now,
	})
	if err != nil {
		return nil, fmt.Errorf("index blob %s: %w", up.SHA256, err)
	}

	if err := c.index.UpdateAccess(ctx, up.SHA256, now); err != nil {
		return nil, err
	}
	return blob, nil
}

func (c *Coordinator) write(ctx context.Context, up Upload, blobType string) error {
	if up.Source == nil {
		return fmt.Errorf("upload %s has no source", up.SHA256)
	}
	src, err := up.Source.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", up.SHA256, err)
	}
	defer func() { _ = src.Close() }()

	if err := c.backend.WriteBlob(ctx, up.SHA256, src, blobType); err != nil {
		return fmt.Errorf("write blob %s: %w", up.SHA256, err)
	}
	return nil
}

func (c *Coordinator) discard(up Upload) {
	if up.Source == nil {
		return
	}
	if err := up.Source.Discard(); err != nil {
		logger.Warn("Storage: failed to discard staged upload %s: %v", up.SHA256, err)
	}
}

// Delete removes hash from the index (cascading ownership), then from the
// backend if present, then drops its access record. It reports whether the
// index had a row.
func (c *Coordinator) Delete(ctx context.Context, hash string) (bool, error) {
	removed, err := c.index.RemoveBlob(ctx, hash)
	if err != nil {
		return false, err
	}

	if err := c.removeBytes(ctx, hash); err != nil {
		return removed, err
	}

	if err := c.index.ForgetAccess(ctx, hash); err != nil {
		return removed, err
	}
	return removed, nil
}

// RemoveBytes deletes the backend object for hash if one exists, leaving
// the index untouched. Used for orphans whose rows are already gone.
func (c *Coordinator) RemoveBytes(ctx context.Context, hash string) error {
	if err := c.removeBytes(ctx, hash); err != nil {
		return err
	}
	return c.index.ForgetAccess(ctx, hash)
}

func (c *Coordinator) removeBytes(ctx context.Context, hash string) error {
	has, err := c.backend.HasBlob(ctx, hash)
	if err != nil {
		return fmt.Errorf("check backend for %s: %w", hash, err)
	}
	if !has {
		return nil
	}
	if err := c.backend.RemoveBlob(ctx, hash); err != nil && !errors.Is(err, backend.ErrBlobNotFound) {
		return fmt.Errorf("remove blob %s: %w", hash, err)
	}
	return nil
}

// backendErr maps backend not-found into ErrNotFound.
func (c *Coordinator) backendErr(hash string, err error) error {
	if errors.Is(err, backend.ErrBlobNotFound) {
		return fmt.Errorf("blob %s: %w", hash, ErrNotFound)
	}
	return err
}
