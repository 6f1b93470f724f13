package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const (
	createSQLiteSlotsSQL = `CREATE TABLE IF NOT EXISTS kv_slots (
        key        TEXT PRIMARY KEY,
        value      TEXT NOT NULL,
        updated_at INTEGER NOT NULL
    );`

	upsertSQLiteSlotSQL = `INSERT INTO kv_slots (key, value, updated_at) VALUES (?, ?, ?)
    ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`

	selectSQLiteSlotSQL = `SELECT value FROM kv_slots WHERE key = ?;`
)

// SQLite stores slots in a single-file database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer keeps SQLITE_BUSY out of the picture
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, createSQLiteSlotsSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv_slots table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Load reads the slot value.
func (s *SQLite) Load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	var value string
	err := s.db.QueryRowContext(ctx, selectSQLiteSlotSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select slot: %w", err)
	}
	return []byte(value), nil
}

// Save upserts the slot value.
func (s *SQLite) Save(ctx context.Context, key string, value []byte) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}

	if _, err := s.db.ExecContext(ctx, upsertSQLiteSlotSQL, key, string(value), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Backend = (*SQLite)(nil)
