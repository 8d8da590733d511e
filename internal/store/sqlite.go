// Package store provides storage backends for TicketPipe.
//
// This file implements an SQLite-backed key-value store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a KVStore backed by an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Get returns the stored value for key, or (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_records WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore Get key absent", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set stores value under key, replacing any existing value.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_records (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value))
	if err != nil {
		slog.Error("SQLiteStore Set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	slog.Debug("SQLiteStore Set succeeded", "key", key)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = ?`, key)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	slog.Debug("SQLiteStore Delete succeeded", "key", key)
	return nil
}

// IncrAndGet atomically increments the counter under key and returns the
// new value. The upsert keeps concurrent allocations from colliding on the
// same number.
func (s *SQLiteStore) IncrAndGet(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv_counters (key, value) VALUES (?, 1)
		 ON CONFLICT(key) DO UPDATE SET value = value + 1
		 RETURNING value`, key).Scan(&value)
	if err != nil {
		slog.Error("SQLiteStore IncrAndGet failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	slog.Debug("SQLiteStore IncrAndGet succeeded", "key", key, "value", value)
	return value, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
