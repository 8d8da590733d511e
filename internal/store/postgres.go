// Package store provides storage backends for TicketPipe.
//
// This file implements a PostgreSQL-backed key-value store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a KVStore backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure the key-value tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Get returns the stored value for key, or (nil, nil) when absent.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_records WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore Get key absent", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set stores value under key, replacing any existing value.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_records (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, string(value))
	if err != nil {
		slog.Error("PostgresStore Set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	slog.Debug("PostgresStore Set succeeded", "key", key)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = $1`, key)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	slog.Debug("PostgresStore Delete succeeded", "key", key)
	return nil
}

// IncrAndGet atomically increments the counter under key and returns the
// new value. The upsert runs as a single statement so concurrent
// allocations never observe the same number.
func (s *PostgresStore) IncrAndGet(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv_counters (key, value) VALUES ($1, 1)
		 ON CONFLICT (key) DO UPDATE SET value = kv_counters.value + 1
		 RETURNING value`, key).Scan(&value)
	if err != nil {
		slog.Error("PostgresStore IncrAndGet failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	slog.Debug("PostgresStore IncrAndGet succeeded", "key", key, "value", value)
	return value, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
