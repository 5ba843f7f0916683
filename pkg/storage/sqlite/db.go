// Package sqlite provides the SQLite-backed implementations of the storage
// interfaces. A single connection is used because SQLite serializes writers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

// DB wraps the sql.DB handle and owns schema migration.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at the given DSN and applies any
// pending migrations.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; limiting the pool to one connection
	// avoids SQLITE_BUSY under concurrent request handling.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debugf("Opened SQLite database at %s", dsn)
	return &DB{db: db}, nil
}

// DB returns the underlying sql.DB handle.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
