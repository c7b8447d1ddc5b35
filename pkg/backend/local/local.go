// Package local implements blob storage on the local filesystem.
//
// Objects are stored flat under a root directory as hash or hash.ext. Writes
// go through a staging directory (root/tmp) and are renamed into place, so a
// failed or interrupted write never leaves a partial object under its final
// name.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
	"github.com/gabriel-vasile/mimetype"
)

const (
	backendName = "local"
	tmpDirName  = "tmp"
)

// Config configures a local backend.
type Config struct {
	// Path is the root directory holding blob files.
	Path string

	// Metrics receives operation observations. nil disables collection.
	Metrics backend.Metrics
}

// Backend stores blobs as files under a root directory.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes of the same hash each stage
// their own temp file; the rename makes the last one visible, and since the
// bytes are identical by construction the outcome is the same.
type Backend struct {
	root    string
	tmp     string
	metrics backend.Metrics
}

var _ backend.Backend = (*Backend)(nil)

// New creates a local backend rooted at cfg.Path. Call Setup before use.
func New(cfg Config) *Backend {
	return &Backend{
		root:    cfg.Path,
		tmp:     filepath.Join(cfg.Path, tmpDirName),
		metrics: backend.OrNoop(cfg.Metrics),
	}
}

// Setup creates the root and staging directories if absent.
func (b *Backend) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.root == "" {
		return fmt.Errorf("local root path is required: %w", backend.ErrBackendUnreachable)
	}

	if err := os.MkdirAll(b.tmp, 0755); err != nil {
		return fmt.Errorf("create %s: %v: %w", b.tmp, err, backend.ErrBackendUnreachable)
	}
	return nil
}

// Root returns the root directory.
func (b *Backend) Root() string {
	return b.root
}

// find returns the path of the object stored for hash, or "" when none
// exists. If several objects share the hash, the first by name wins.
func (b *Backend) find(hash string) (string, error) {
	if err := backend.ValidateHash(hash); err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(b.root, hash+"*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if backend.HashFromName(filepath.Base(m)) == hash {
			return m, nil
		}
	}
	return "", nil
}

func (b *Backend) mustFind(hash string) (string, error) {
	path, err := b.find(hash)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
	}
	return path, nil
}

func (b *Backend) observe(op string, start time.Time, err error) {
	if errors.Is(err, backend.ErrBlobNotFound) {
		err = nil
	}
	b.metrics.ObserveOperation(backendName, op, time.Since(start), err)
}

// HasBlob reports whether a file exists for hash.
func (b *Backend) HasBlob(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.find(hash)
	if err != nil {
		return false, err
	}
	return path != "", nil
}

// ReadBlob opens the file for hash.
func (b *Backend) ReadBlob(ctx context.Context, hash string) (_ io.ReadCloser, err error) {
	start := time.Now()
	defer func() { b.observe("read", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := b.mustFind(hash)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	return backend.MeteredReadCloser(file, b.metrics, backendName, "read"), nil
}

// WriteBlob stages r into a temp file, syncs it and renames it to
// hash + extension. If an object already exists for hash the write is
// skipped.
func (b *Backend) WriteBlob(ctx context.Context, hash string, r io.Reader, mimeType string) (err error) {
	start := time.Now()
	defer func() { b.observe("write", start, err) }()

	// ========================================================================
	// Step 1: Validate and check for an existing object
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := b.find(hash)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	// ========================================================================
	// Step 2: Stream into a temp file
	// ========================================================================

	tmp, err := os.CreateTemp(b.tmp, hash+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob: %w", err)
	}

	// ========================================================================
	// Step 3: Move into place
	// ========================================================================

	final := filepath.Join(b.root, backend.ObjectName(hash, mimeType))
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	committed = true

	b.metrics.RecordBytes(backendName, "write", n)
	return nil
}

// GetBlobSize stats the file for hash.
func (b *Backend) GetBlobSize(ctx context.Context, hash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := b.mustFind(hash)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
		}
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size(), nil
}

// GetBlobType derives the type from the file extension, falling back to
// sniffing the file's leading bytes.
func (b *Backend) GetBlobType(ctx context.Context, hash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := b.mustFind(hash)
	if err != nil {
		return "", err
	}

	if t := backend.TypeFromName(filepath.Base(path)); t != "" {
		return t, nil
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
		}
		return "", fmt.Errorf("failed to detect blob type: %w", err)
	}
	return m.String(), nil
}

// RemoveBlob unlinks the file for hash.
func (b *Backend) RemoveBlob(ctx context.Context, hash string) (err error) {
	start := time.Now()
	defer func() { b.observe("delete", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.mustFind(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
		}
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

// ListBlobs lists the regular files under the root directory.
func (b *Backend) ListBlobs(ctx context.Context) (_ []backend.ObjectInfo, err error) {
	start := time.Now()
	defer func() { b.observe("list", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	objects := make([]backend.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		objects = append(objects, backend.ObjectInfo{
			Name:     entry.Name(),
			Hash:     backend.HashFromName(entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return objects, nil
}

// Close is a no-op; the local backend holds no open resources.
func (b *Backend) Close() error {
	return nil
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
