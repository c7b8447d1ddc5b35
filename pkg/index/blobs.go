package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const blobColumns = "sha256, type, size, uploaded"

// removeBatchSize keeps IN lists well under SQLite's bound-parameter limit.
const removeBatchSize = 500

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlob(row rowScanner) (*Blob, error) {
	var (
		blob     Blob
		blobType sql.NullString
	)
	if err := row.Scan(&blob.SHA256, &blobType, &blob.Size, &blob.Uploaded); err != nil {
		return nil, err
	}
	blob.Type = blobType.String
	return &blob, nil
}

// HasBlob reports whether a row exists for hash.
func (idx *Index) HasBlob(ctx context.Context, hash string) (bool, error) {
	var exists int
	err := idx.db.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE sha256 = ? LIMIT 1", hash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check blob %s: %w", hash, err)
	}
	return true, nil
}

// GetBlob returns the row for hash, or ErrNotFound.
func (idx *Index) GetBlob(ctx context.Context, hash string) (*Blob, error) {
	row := idx.db.QueryRowContext(ctx, "SELECT "+blobColumns+" FROM blobs WHERE sha256 = ?", hash)
	blob, err := scanBlob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", hash, err)
	}
	return blob, nil
}

// AddBlob inserts a row for blob.SHA256 unless one already exists, and
// returns the stored row. A second insert of the same hash is a silent
// no-op: size and type from the later call are ignored.
func (idx *Index) AddBlob(ctx context.Context, blob Blob) (*Blob, error) {
	if blob.SHA256 == "" {
		return nil, fmt.Errorf("add blob: hash is required")
	}
	if blob.Size < 0 {
		return nil, fmt.Errorf("add blob %s: negative size %d", blob.SHA256, blob.Size)
	}

	// MIME types are case-insensitive; rules match them in lower case.
	blob.Type = strings.ToLower(strings.TrimSpace(blob.Type))

	_, err := idx.db.ExecContext(ctx,
		"INSERT INTO blobs ("+blobColumns+") VALUES (?, ?, ?, ?) ON CONFLICT(sha256) DO NOTHING",
		blob.SHA256, nullIfEmpty(blob.Type), blob.Size, blob.Uploaded)
	if err != nil {
		return nil, fmt.Errorf("add blob %s: %w", blob.SHA256, err)
	}

	return idx.GetBlob(ctx, blob.SHA256)
}

// RemoveBlob deletes the row for hash and, through the foreign key, all of
// its ownership edges. It reports whether a row was deleted.
func (idx *Index) RemoveBlob(ctx context.Context, hash string) (bool, error) {
	res, err := idx.db.ExecContext(ctx, "DELETE FROM blobs WHERE sha256 = ?", hash)
	if err != nil {
		return false, fmt.Errorf("remove blob %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove blob %s: %w", hash, err)
	}
	return n > 0, nil
}

// RemoveBlobs deletes the rows for all hashes in one transaction and
// returns the number of rows deleted.
func (idx *Index) RemoveBlobs(ctx context.Context, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("remove blobs: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for start := 0; start < len(hashes); start += removeBatchSize {
		end := min(start+removeBatchSize, len(hashes))
		batch := hashes[start:end]

		args := make([]any, len(batch))
		for i, h := range batch {
			args[i] = h
		}

		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM blobs WHERE sha256 IN (%s)", placeholders(len(batch))), args...)
		if err != nil {
			return 0, fmt.Errorf("remove blobs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("remove blobs: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("remove blobs: %w", err)
	}
	return total, nil
}

// AllBlobHashes returns every hash in the index.
func (idx *Index) AllBlobHashes(ctx context.Context) ([]string, error) {
	return idx.queryStrings(ctx, "SELECT sha256 FROM blobs ORDER BY sha256")
}

func (idx *Index) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", count), ",")
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
