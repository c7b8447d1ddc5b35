package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// HasOwner reports whether pubkey holds at least one ownership edge on hash.
func (idx *Index) HasOwner(ctx context.Context, hash, pubkey string) (bool, error) {
	var exists int
	err := idx.db.QueryRowContext(ctx,
		"SELECT 1 FROM owners WHERE blob = ? AND pubkey = ? LIMIT 1", hash, pubkey).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check owner %s on %s: %w", pubkey, hash, err)
	}
	return true, nil
}

// AddOwner records an ownership edge. Duplicate edges are permitted.
// The blob row must exist.
func (idx *Index) AddOwner(ctx context.Context, hash, pubkey string) error {
	_, err := idx.db.ExecContext(ctx, "INSERT INTO owners (blob, pubkey) VALUES (?, ?)", hash, pubkey)
	if err != nil {
		return fmt.Errorf("add owner %s on %s: %w", pubkey, hash, err)
	}
	return nil
}

// RemoveOwner deletes every edge between hash and pubkey and reports
// whether any existed.
func (idx *Index) RemoveOwner(ctx context.Context, hash, pubkey string) (bool, error) {
	res, err := idx.db.ExecContext(ctx, "DELETE FROM owners WHERE blob = ? AND pubkey = ?", hash, pubkey)
	if err != nil {
		return false, fmt.Errorf("remove owner %s on %s: %w", pubkey, hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove owner %s on %s: %w", pubkey, hash, err)
	}
	return n > 0, nil
}

// ListOwners returns the set of pubkeys owning hash.
func (idx *Index) ListOwners(ctx context.Context, hash string) (mapset.Set[string], error) {
	pubkeys, err := idx.queryStrings(ctx, "SELECT pubkey FROM owners WHERE blob = ?", hash)
	if err != nil {
		return nil, fmt.Errorf("list owners of %s: %w", hash, err)
	}
	return mapset.NewSet(pubkeys...), nil
}

// GetOwnerBlobs returns the blobs owned by pubkey ordered by upload time,
// optionally bounded by opts.
func (idx *Index) GetOwnerBlobs(ctx context.Context, pubkey string, opts OwnerBlobsOptions) ([]Blob, error) {
	where := []string{"owners.pubkey = ?"}
	args := []any{pubkey}
	if opts.Since != nil {
		where = append(where, "blobs.uploaded >= ?")
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		where = append(where, "blobs.uploaded <= ?")
		args = append(args, *opts.Until)
	}

	query := "SELECT DISTINCT blobs.sha256, blobs.type, blobs.size, blobs.uploaded FROM blobs" +
		" JOIN owners ON owners.blob = blobs.sha256" +
		" WHERE " + strings.Join(where, " AND ") +
		" ORDER BY blobs.uploaded, blobs.sha256"

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get blobs of %s: %w", pubkey, err)
	}
	defer rows.Close()

	var blobs []Blob
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("get blobs of %s: %w", pubkey, err)
		}
		blobs = append(blobs, *blob)
	}
	return blobs, rows.Err()
}
