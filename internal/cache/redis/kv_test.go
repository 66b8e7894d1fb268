package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// newTestClient connects to PREDICTD_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("PREDICTD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PREDICTD_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKVStore_CommitAndRollback(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	s := NewKVStore(c, NewLockManager(c, "test:"), KVConfig{Prefix: "test:" + uuid.NewString() + ":"})

	abort := errors.New("abort")
	err := s.Atomic(ctx, func(kv domain.KV) error {
		_ = kv.Set(ctx, "a", []byte("1"))
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("got %v, want abort", err)
	}

	err = s.Atomic(ctx, func(kv domain.KV) error {
		if ok, _ := kv.Has(ctx, "a"); ok {
			t.Error("rolled-back write is visible")
		}
		n, err := kv.Incr(ctx, "counter:market")
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("got %d, want 1", n)
		}
		return kv.Set(ctx, "a", []byte("2"))
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Atomic(ctx, func(kv domain.KV) error {
		v, ok, err := kv.Get(ctx, "a")
		if err != nil || !ok || string(v) != "2" {
			t.Errorf("Get(a) = %q, %v, %v", v, ok, err)
		}
		return nil
	})
}

func TestKVStore_ReadRefreshesTTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	s := NewKVStore(c, NewLockManager(c, prefix), KVConfig{Prefix: prefix, TTL: time.Hour})

	if err := s.Atomic(ctx, func(kv domain.KV) error {
		return kv.Set(ctx, "market:1", []byte("m"))
	}); err != nil {
		t.Fatal(err)
	}
	rdb := c.Underlying()
	if err := rdb.PExpire(ctx, prefix+"market:1", time.Second).Err(); err != nil {
		t.Fatal(err)
	}

	if err := s.Atomic(ctx, func(kv domain.KV) error {
		_, _, err := kv.Get(ctx, "market:1")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	ttl, err := rdb.PTTL(ctx, prefix+"market:1").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl < time.Minute {
		t.Errorf("TTL after read = %v, want refreshed to about an hour", ttl)
	}
}

func TestKVStore_CommitFailsAfterLockLost(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	s := NewKVStore(c, NewLockManager(c, prefix), KVConfig{Prefix: prefix})
	rdb := c.Underlying()

	err := s.Atomic(ctx, func(kv domain.KV) error {
		// The lease lapses and another holder takes the lock mid-transaction.
		if err := rdb.Set(ctx, prefix+"lock:"+ledgerLock, "other-holder", time.Minute).Err(); err != nil {
			t.Fatal(err)
		}
		return kv.Set(ctx, "a", []byte("1"))
	})
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("got %v, want ErrLockHeld", err)
	}
	if n, _ := rdb.Exists(ctx, prefix+"a").Result(); n != 0 {
		t.Error("write committed without the lock")
	}
	if owner, _ := rdb.Get(ctx, prefix+"lock:"+ledgerLock).Result(); owner != "other-holder" {
		t.Errorf("lock owner = %q, want other-holder untouched", owner)
	}
	rdb.Del(ctx, prefix+"lock:"+ledgerLock)
}

func TestLockManager_Exclusive(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c, "test:")
	key := "test-" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, key, time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Errorf("second acquire: got %v, want ErrLockHeld", err)
	}
	unlock()
	unlock()

	again, err := lm.Acquire(ctx, key, time.Second)
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	again()
}
