// Package db opens the SQLite databases backing the reference applications.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxOpenConns is the maximum number of open connections per database.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 4

	// MaxIdleConns is the maximum number of idle connections per database.
	MaxIdleConns = 2
)

// DB wraps a *sql.DB opened with SQLiteDriverName.
type DB struct {
	db      *sql.DB
	path    string
	tempDir string // removed on Close when the database is temporary
}

// Open opens (creating if needed) the database at path and applies each
// schema in order. An empty path opens a database in a fresh temporary
// directory that is removed on Close.
func Open(path string, schemas ...string) (*DB, error) {
	var tempDir string
	if path == "" {
		dir, err := os.MkdirTemp("", "crud-e2e-db-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary database directory: %w", err)
		}
		tempDir = dir
		path = filepath.Join(dir, "app.db")
	} else if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cleanup := func() {
		if tempDir != "" {
			_ = os.RemoveAll(tempDir)
		}
	}

	sqlDB, err := sql.Open(SQLiteDriverName, appendSQLiteParams(path, sqliteCommonParams()))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		cleanup()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	for i, schema := range schemas {
		if _, err := sqlDB.Exec(schema); err != nil {
			sqlDB.Close()
			cleanup()
			return nil, fmt.Errorf("failed to apply schema %d: %w", i, err)
		}
	}

	return &DB{db: sqlDB, path: path, tempDir: tempDir}, nil
}

// SQL returns the underlying sql.DB.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database and removes it if it was temporary.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	err := d.db.Close()
	if d.tempDir != "" {
		if rmErr := os.RemoveAll(d.tempDir); rmErr != nil && err == nil {
			err = fmt.Errorf("failed to remove temporary database: %w", rmErr)
		}
	}
	return err
}

func sqliteCommonParams() string {
	// WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
