package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetHas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Atomic(ctx, func(kv domain.KV) error {
		if ok, err := kv.Has(ctx, "market:1"); err != nil || ok {
			t.Errorf("Has before Set = %v, %v", ok, err)
		}
		if err := kv.Set(ctx, "market:1", []byte(`{"id":"1"}`)); err != nil {
			return err
		}
		return kv.Set(ctx, "market:1", []byte(`{"id":"1","status":"active"}`))
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	_ = s.Atomic(ctx, func(kv domain.KV) error {
		v, ok, err := kv.Get(ctx, "market:1")
		if err != nil || !ok {
			t.Fatalf("Get = %v, %v", ok, err)
		}
		if string(v) != `{"id":"1","status":"active"}` {
			t.Errorf("got %s", v)
		}
		if err := kv.Touch(ctx, "market:1"); err != nil {
			t.Errorf("Touch: %v", err)
		}
		return nil
	})
}

func TestRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	abort := errors.New("abort")
	err := s.Atomic(ctx, func(kv domain.KV) error {
		if err := kv.Set(ctx, "k", []byte("v")); err != nil {
			return err
		}
		if _, err := kv.Incr(ctx, "counter:market"); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("got %v, want abort", err)
	}

	_ = s.Atomic(ctx, func(kv domain.KV) error {
		if ok, _ := kv.Has(ctx, "k"); ok {
			t.Error("rolled-back write is visible")
		}
		n, err := kv.Incr(ctx, "counter:market")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != 1 {
			t.Errorf("got %d, want 1", n)
		}
		return nil
	})
}
