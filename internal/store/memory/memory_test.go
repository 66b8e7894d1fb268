package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

func TestAtomic_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Atomic(ctx, func(kv domain.KV) error {
		return kv.Set(ctx, "a", []byte("1"))
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	_ = s.Atomic(ctx, func(kv domain.KV) error {
		v, ok, err := kv.Get(ctx, "a")
		if err != nil || !ok || string(v) != "1" {
			t.Errorf("Get(a) = %q, %v, %v", v, ok, err)
		}
		return nil
	})
}

func TestAtomic_DiscardsOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(kv domain.KV) error {
		_ = kv.Set(ctx, "a", []byte("1"))
		if ok, _ := kv.Has(ctx, "a"); !ok {
			t.Error("write should be visible inside the transaction")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if len(s.Keys()) != 0 {
		t.Errorf("got keys %v, want none", s.Keys())
	}
}

func TestIncr(t *testing.T) {
	s := New()
	ctx := context.Background()

	var got []uint64
	for i := 0; i < 3; i++ {
		_ = s.Atomic(ctx, func(kv domain.KV) error {
			n, err := kv.Incr(ctx, "counter:market")
			if err != nil {
				return err
			}
			got = append(got, n)
			return nil
		})
	}
	for i, n := range got {
		if n != uint64(i+1) {
			t.Errorf("incr %d: got %d, want %d", i, n, i+1)
		}
	}

	// A rolled-back increment is not observed.
	_ = s.Atomic(ctx, func(kv domain.KV) error {
		_, _ = kv.Incr(ctx, "counter:market")
		return errors.New("abort")
	})
	_ = s.Atomic(ctx, func(kv domain.KV) error {
		n, _ := kv.Incr(ctx, "counter:market")
		if n != 4 {
			t.Errorf("got %d after rollback, want 4", n)
		}
		return nil
	})
}

func TestAtomic_Serialized(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomic(ctx, func(kv domain.KV) error {
				_, err := kv.Incr(ctx, "n")
				return err
			})
		}()
	}
	wg.Wait()

	if v := string(s.Snapshot()["n"]); v != "50" {
		t.Errorf("got %s, want 50", v)
	}
}

func TestAtomic_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Atomic(ctx, func(domain.KV) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn must not run on a canceled context")
	}
}
