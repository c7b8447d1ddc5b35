// Package backend defines the byte-storage abstraction behind the blob
// index.
//
// A Backend stores the raw bytes of blobs keyed by their content hash. It
// knows nothing about ownership, retention or upload times; those live in
// the index. Two implementations exist:
//   - local: a directory on the local filesystem
//   - s3: an S3-compatible bucket with an in-memory object listing cache
//
// The implementation is chosen once at startup from configuration and used
// through this interface afterwards. Optional features are exposed as
// separate capability interfaces (Redirector, Refresher) that callers probe
// with a type assertion.
package backend

import (
	"context"
	"io"
	"time"
)

// ============================================================================
// Backend Interface
// ============================================================================

// Backend stores blob bytes by content hash.
//
// Object Naming:
// Objects are named hash + extension, where the extension is derived from
// the MIME type given at write time (see ObjectName). Lookups match by hash
// prefix, so callers only ever deal in hashes.
//
// Error Semantics:
//   - Reads and removals of missing objects return ErrBlobNotFound
//   - Setup failures that make the backend unusable return
//     ErrBackendUnreachable and must abort startup
//   - Write failures are returned unmodified; no index or cache entry is
//     recorded for a failed write
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Backend interface {
	// Setup prepares the backend for use: creates directories, verifies
	// bucket access, warms caches. Must be called once before any other
	// method.
	Setup(ctx context.Context) error

	// HasBlob reports whether an object exists for hash.
	HasBlob(ctx context.Context, hash string) (bool, error)

	// ReadBlob returns a reader for the object's bytes. The caller must
	// close it.
	//
	// Returns ErrBlobNotFound if no object exists for hash.
	ReadBlob(ctx context.Context, hash string) (io.ReadCloser, error)

	// WriteBlob stores the bytes read from r under hash. mimeType may be
	// empty; when set it determines the object's extension.
	WriteBlob(ctx context.Context, hash string, r io.Reader, mimeType string) error

	// GetBlobSize returns the object's size in bytes.
	//
	// Returns ErrBlobNotFound if no object exists for hash.
	GetBlobSize(ctx context.Context, hash string) (int64, error)

	// GetBlobType returns the object's MIME type, or "" when it cannot be
	// determined.
	//
	// Returns ErrBlobNotFound if no object exists for hash.
	GetBlobType(ctx context.Context, hash string) (string, error)

	// RemoveBlob deletes the object for hash.
	//
	// Returns ErrBlobNotFound if no object exists for hash.
	RemoveBlob(ctx context.Context, hash string) error

	// ListBlobs enumerates every object the backend holds, including
	// objects whose names are not valid blob names (Hash is empty for
	// those).
	ListBlobs(ctx context.Context) ([]ObjectInfo, error)

	// Close releases resources held by the backend.
	Close() error
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Name is the object's name within the backend (file name or key).
	Name string

	// Hash is the content hash parsed from Name, or "" if Name does not
	// start with a valid hash.
	Hash string

	Size     int64
	Modified time.Time
}

// ============================================================================
// Optional Capabilities
// ============================================================================

// Redirector is implemented by backends that can serve objects directly to
// clients from a public URL.
type Redirector interface {
	// PublicURL returns the public URL for hash, or false when no public
	// base is configured or no object exists for hash.
	PublicURL(hash string) (string, bool)
}

// Refresher is implemented by backends that keep a local view of remote
// state and can rebuild it on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}
