package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS fixturedb_kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// OpenSQLite opens the SQLite database at path and prepares it to be used by NewSQLite.
// Use ":memory:" for a database that lives as long as the returned handle.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:mnd,gofumpt
			return nil, fmt.Errorf("%w: mkdir: %v", ErrStore, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStore, err)
	}

	if path == ":memory:" {
		// every new connection would get its own, empty in-memory database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStore, p, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStore, err)
	}

	return db, nil
}

// NewSQLite returns a Storage persisting into db.
// The table is expected to exist, see OpenSQLite.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

var _ Storage = (*SQLite)(nil)

type SQLite struct {
	db *sql.DB
}

func (s *SQLite) Get(ctx context.Context, key Key) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM fixturedb_kv WHERE key = ?`, key.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key Key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fixturedb_kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key.String(), value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}

func (s *SQLite) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fixturedb_kv WHERE key = ?`, key.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close() //nolint:wrapcheck
}
