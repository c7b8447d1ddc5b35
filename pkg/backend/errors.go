package backend

import "errors"

// ============================================================================
// Standard Backend Errors
// ============================================================================

// Implementations wrap these with context so callers can match them with
// errors.Is:
//
//	if !exists {
//	    return fmt.Errorf("blob %s: %w", hash, backend.ErrBlobNotFound)
//	}

var (
	// ErrBlobNotFound indicates no object exists for the requested hash.
	//
	// This error is returned when:
	//   - ReadBlob() is called for a missing object
	//   - GetBlobSize()/GetBlobType() are called for a missing object
	//   - RemoveBlob() is called for a missing object
	//
	// This is a recoverable condition, not a failure of the backend.
	ErrBlobNotFound = errors.New("blob not found in backend")

	// ErrBackendUnreachable indicates the backend could not be reached or
	// is not usable (bucket missing, credentials rejected, root directory
	// not writable).
	//
	// Returned by Setup(). The process must not start in a degraded mode
	// when it sees this error.
	ErrBackendUnreachable = errors.New("storage backend unreachable")

	// ErrInvalidHash indicates a hash that is not 64 lowercase hex
	// characters.
	//
	// Backends validate hashes before building any path or key from them,
	// so a malformed hash never reaches the filesystem or the bucket.
	ErrInvalidHash = errors.New("invalid blob hash")
)
