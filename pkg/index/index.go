// Package index implements the relational metadata index for blobs.
//
// The index is the single source of truth for which blobs exist, who owns
// them and when they were last served. It is backed by SQLite through the
// pure-Go modernc.org/sqlite driver, so the server ships as a single static
// binary with no external database.
//
// Three relations are maintained:
//   - blobs: one row per content hash (first writer wins)
//   - owners: ownership edges, cascaded when the blob row is deleted
//   - accessed: last access timestamp per hash, used by retention rules
//
// All mutations that must be atomic are single statements (insert-or-ignore,
// upsert), so concurrent uploads of the same hash never race at this layer.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Config configures the index database.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string
}

// Index wraps the SQLite database holding blob metadata.
//
// Thread Safety:
// Safe for concurrent use. The connection pool is capped at one connection,
// which serializes writers inside the process; busy_timeout covers other
// processes holding the database (e.g. the CLI while the server runs).
type Index struct {
	db *sql.DB
}

// Open opens the index database and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Index{db: db}, nil
}

// Plan reports the migration status of the database at cfg.Path without
// applying anything.
func Plan(ctx context.Context, cfg Config) (*MigrationStatus, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	return migrationPlan(ctx, db)
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// MigrationPlan returns the migration status of the open database.
func (idx *Index) MigrationPlan(ctx context.Context) (*MigrationStatus, error) {
	return migrationPlan(ctx, idx.db)
}

// Stats returns aggregate counts over the index.
func (idx *Index) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := idx.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blobs").Scan(&stats.Blobs, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("count blobs: %w", err)
	}

	err = idx.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT pubkey) FROM owners").Scan(&stats.Owners)
	if err != nil {
		return nil, fmt.Errorf("count owners: %w", err)
	}

	return &stats, nil
}

func openDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn, err := sqliteDSN(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configureDB(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	// journal_mode is persistent in the file; the per-connection pragmas
	// travel in the DSN so recycled connections get them too.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("configure index db: %w", err)
	}
	return db.PingContext(ctx)
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("index path is required")
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "synchronous(NORMAL)")
	u := url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}
	return u.String(), nil
}
