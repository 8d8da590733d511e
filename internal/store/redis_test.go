package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// setupRedisStore creates a RedisStore connected to a miniredis instance.
func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewRedisStore(WithRedisAddr(mr.Addr()))
	if err != nil {
		t.Fatalf("failed to create Redis store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t)

	// Absent key
	value, err := s.Get(ctx, "requester:alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != nil {
		t.Errorf("expected nil for absent key, got %q", value)
	}

	if err := s.Set(ctx, "requester:alice", []byte(`{"channel_id":"c1"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err = s.Get(ctx, "requester:alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(value) != `{"channel_id":"c1"}` {
		t.Errorf("value not stored or retrieved correctly: %q", value)
	}

	if err := s.Delete(ctx, "requester:alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "requester:alice"); err != nil {
		t.Errorf("deleting absent key should not error: %v", err)
	}
}

func TestRedisStoreIncrAndGet(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrAndGet(ctx, "counter:tickets")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("increment = %d, want %d", got, want)
		}
	}
}

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedisStore(); err == nil {
		t.Error("expected error when redis address is not set")
	}
}
