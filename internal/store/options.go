package store

import "strings"

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string for SQLite or PostgreSQL.
	DSN string
	// RedisAddr is the host:port of a Redis server.
	RedisAddr string
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string
	// RedisDB selects the Redis logical database.
	RedisDB int
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithRedisAddr sets the Redis server address.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) {
		o.RedisAddr = addr
	}
}

// WithRedisPassword sets the Redis AUTH password.
func WithRedisPassword(password string) Option {
	return func(o *Opts) {
		o.RedisPassword = password
	}
}

// WithRedisDB selects the Redis logical database.
func WithRedisDB(db int) Option {
	return func(o *Opts) {
		o.RedisDB = db
	}
}

// DetectDSNType inspects a DSN and reports which backend it addresses:
// "postgres", "redis", or "sqlite" (the fallback for plain file paths).
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return "postgres"
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	default:
		return "sqlite"
	}
}
