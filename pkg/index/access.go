package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpdateAccess records ts as the last access time for hash.
func (idx *Index) UpdateAccess(ctx context.Context, hash string, ts int64) error {
	_, err := idx.db.ExecContext(ctx,
		"INSERT INTO accessed (blob, timestamp) VALUES (?, ?) ON CONFLICT(blob) DO UPDATE SET timestamp = excluded.timestamp",
		hash, ts)
	if err != nil {
		return fmt.Errorf("update access %s: %w", hash, err)
	}
	return nil
}

// ForgetAccess drops the access record for hash. Missing records are not
// an error.
func (idx *Index) ForgetAccess(ctx context.Context, hash string) error {
	if _, err := idx.db.ExecContext(ctx, "DELETE FROM accessed WHERE blob = ?", hash); err != nil {
		return fmt.Errorf("forget access %s: %w", hash, err)
	}
	return nil
}

// GetAccess returns the last access time for hash and whether one exists.
func (idx *Index) GetAccess(ctx context.Context, hash string) (int64, bool, error) {
	var ts int64
	err := idx.db.QueryRowContext(ctx, "SELECT timestamp FROM accessed WHERE blob = ?", hash).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get access %s: %w", hash, err)
	}
	return ts, true, nil
}
