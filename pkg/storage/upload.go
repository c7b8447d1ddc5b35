package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// Staged is the byte source of a validated upload.
type Staged interface {
	// Open returns a reader over the staged bytes. The caller closes it.
	Open() (io.ReadCloser, error)

	// Discard releases the staged bytes once they are committed or no
	// longer needed.
	Discard() error
}

// Upload describes a completed, hash-verified upload awaiting commit. The
// coordinator trusts SHA256 and Size without re-hashing.
type Upload struct {
	SHA256 string
	Size   int64
	Type   string
	Source Staged
}

// StagedFile is a staged upload held in a file on disk.
type StagedFile struct {
	Path string

	// Keep leaves the file in place on Discard. Set for files the caller
	// does not own.
	Keep bool
}

func (f StagedFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

func (f StagedFile) Discard() error {
	if f.Keep {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// StageFile describes an existing file as an upload, hashing its contents
// and sniffing its type. The file is left in place after commit.
func StageFile(path string) (*Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", path, err)
	}

	return &Upload{
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
		Size:   size,
		Type:   detectType(path),
		Source: StagedFile{Path: path, Keep: true},
	}, nil
}

// StageReader copies r into a temp file under dir while hashing it. The
// temp file is removed when the upload is committed or discarded.
func StageReader(dir string, r io.Reader) (*Upload, error) {
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	path := tmp.Name()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	return &Upload{
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
		Size:   size,
		Type:   detectType(path),
		Source: StagedFile{Path: path},
	}, nil
}

func detectType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return m.String()
}
