package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	s := NewRedisStoreFromClient(client, "test:")

	t.Cleanup(func() {
		_ = s.Close()
	})

	return mr, s
}

func TestRedisStore_PutAndGet(t *testing.T) {
	_, s := setupMiniredis(t)
	ctx := context.Background()

	if err := s.Put(ctx, "rl:ip:1.2.3.4", []byte(`{"count":1}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "rl:ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"count":1}` {
		t.Errorf("value mismatch: got %s", got)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, s := setupMiniredis(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, s := setupMiniredis(t)
	ctx := context.Background()

	if err := s.Put(ctx, "cooldown:session:abc", []byte(`{"last":1}`), 30*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(31 * time.Second)

	_, err := s.Get(ctx, "cooldown:session:abc")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after TTL, got %v", err)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	_, s := setupMiniredis(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
	// Deleting an absent key is fine.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of absent key failed: %v", err)
	}
}

func TestRedisStore_Closed(t *testing.T) {
	_, s := setupMiniredis(t)
	_ = s.Close()

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "chat:sess", []byte(`[]`), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, "chat:sess")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("value mismatch: got %s", got)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Put(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now = now.Add(29 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after expiry, got %v", err)
	}
}

func TestMemoryStore_ValueIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	src := []byte("abc")
	if err := s.Put(ctx, "k", src, 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	src[0] = 'x'

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("stored value mutated: got %s", got)
	}
	got[0] = 'y'

	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("returned slice aliased storage: got %s", again)
	}
}
