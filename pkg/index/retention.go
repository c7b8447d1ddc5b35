package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RetentionCandidates returns the distinct blobs whose type matches
// typePattern and, when pubkeys is non-empty, that are owned by at least one
// of pubkeys. Each candidate carries its last access time if recorded.
//
// typePattern is a glob where '*' matches any run of characters; every
// other character matches literally. The bare pattern "*" also matches
// blobs with no recorded type.
func (idx *Index) RetentionCandidates(ctx context.Context, typePattern string, pubkeys []string) ([]Candidate, error) {
	var (
		where []string
		args  []any
	)

	if typePattern == "*" {
		where = append(where, `COALESCE(blobs.type, '') LIKE ? ESCAPE '\'`)
	} else {
		where = append(where, `blobs.type LIKE ? ESCAPE '\'`)
	}
	args = append(args, globToLike(typePattern))

	query := "SELECT DISTINCT blobs.sha256, blobs.type, blobs.size, blobs.uploaded, accessed.timestamp FROM blobs" +
		" LEFT JOIN accessed ON accessed.blob = blobs.sha256"

	if len(pubkeys) > 0 {
		query += " JOIN owners ON owners.blob = blobs.sha256"
		where = append(where, fmt.Sprintf("owners.pubkey IN (%s)", placeholders(len(pubkeys))))
		for _, pk := range pubkeys {
			args = append(args, pk)
		}
	}

	query += " WHERE " + strings.Join(where, " AND ") + " ORDER BY blobs.uploaded, blobs.sha256"

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("retention candidates for %q: %w", typePattern, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c        Candidate
			blobType sql.NullString
			accessed sql.NullInt64
		)
		if err := rows.Scan(&c.SHA256, &blobType, &c.Size, &c.Uploaded, &accessed); err != nil {
			return nil, fmt.Errorf("retention candidates for %q: %w", typePattern, err)
		}
		c.Type = blobType.String
		if accessed.Valid {
			ts := accessed.Int64
			c.Accessed = &ts
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// OrphanedBlobs returns the hashes of blobs with no ownership edges.
func (idx *Index) OrphanedBlobs(ctx context.Context) ([]string, error) {
	hashes, err := idx.queryStrings(ctx,
		"SELECT blobs.sha256 FROM blobs LEFT JOIN owners ON owners.blob = blobs.sha256"+
			" WHERE owners.id IS NULL ORDER BY blobs.sha256")
	if err != nil {
		return nil, fmt.Errorf("orphaned blobs: %w", err)
	}
	return hashes, nil
}

// globToLike converts a type glob into a LIKE pattern for ESCAPE '\'.
func globToLike(glob string) string {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = escapeLike(p)
	}
	return strings.Join(parts, "%")
}
