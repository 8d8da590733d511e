// Package store provides storage backends for TicketPipe.
//
// It exposes a small key-value contract consumed by the ticket registry,
// with in-memory, SQLite, PostgreSQL, and Redis implementations selected by
// DSN detection.
package store

import (
	"context"
	"sync"
)

// KVStore is the durable key-value contract used by the ticket registry.
// Values are opaque byte slices; callers own (de)serialization.
type KVStore interface {
	// Get returns the stored value for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrAndGet atomically increments the counter stored under key and
	// returns the new value. The first call on an absent key returns 1.
	IncrAndGet(ctx context.Context, key string) (int64, error)

	// Close releases any underlying resources.
	Close() error
}

// InMemoryStore is a mutex-guarded in-memory KVStore, used for tests and
// DSN-less runs.
type InMemoryStore struct {
	mu       sync.Mutex
	records  map[string][]byte
	counters map[string]int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[string][]byte),
		counters: make(map[string]int64),
	}
}

// Get returns the stored value for key, or (nil, nil) when absent.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate the stored slice.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key.
func (s *InMemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.records[key] = stored
	return nil
}

// Delete removes key. Idempotent.
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// IncrAndGet atomically increments and returns the counter under key.
func (s *InMemoryStore) IncrAndGet(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
