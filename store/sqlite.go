package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arloliu/handover/types"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS handover_kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

const sqliteMaxRetries = 3

// SQLite is a Backend on a single SQLite table.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path with WAL journaling and
// a busy timeout, and creates the key/value table.
//
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a distinct database
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
			return nil, fmt.Errorf("sqlite store: %s: %w", p, err)
		}
	}

	s, err := NewSQLite(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewSQLite wraps an open database and creates the key/value table if needed.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite store: schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements Backend.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM handover_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w: %w", types.ErrStorageUnavailable, err)
	}

	return value, nil
}

// Put implements Backend.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	return s.exec(ctx, "sqlite put",
		`INSERT INTO handover_kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
}

// Delete implements Backend.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.exec(ctx, "sqlite delete", `DELETE FROM handover_kv WHERE key = ?`, key)
}

// Keys implements Backend.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM handover_kv WHERE substr(key, 1, length(?1)) = ?1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w: %w", types.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite keys: scan: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// exec runs a statement, retrying with 100/200ms backoff while the database is busy.
func (s *SQLite) exec(ctx context.Context, op string, query string, args ...any) error {
	var err error
	for i := range sqliteMaxRetries {
		if _, err = s.db.ExecContext(ctx, query, args...); err == nil {
			return nil
		}
		if !isBusy(err) || i == sqliteMaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}

	return fmt.Errorf("%s: %w: %w", op, types.ErrStorageUnavailable, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
