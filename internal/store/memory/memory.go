// Package memory is an in-process ledger host. Transactions are serialized
// by a single mutex and buffer their writes until commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
)

// Store implements domain.TxRunner over a map.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Atomic runs fn with exclusive access. Writes become visible only if fn
// returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(kv domain.KV) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txn{base: s.data, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.writes {
		s.data[k] = v
	}
	return nil
}

// Snapshot returns a copy of every committed entry.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Keys lists committed keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type txn struct {
	base   map[string][]byte
	writes map[string][]byte
}

func (t *txn) Get(_ context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return append([]byte(nil), v...), true, nil
	}
	v, ok := t.base[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *txn) Set(_ context.Context, key string, value []byte) error {
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *txn) Has(_ context.Context, key string) (bool, error) {
	if _, ok := t.writes[key]; ok {
		return true, nil
	}
	_, ok := t.base[key]
	return ok, nil
}

func (t *txn) Incr(ctx context.Context, key string) (uint64, error) {
	return store.IncrCounter(ctx, t, key)
}

// Touch is a no-op: entries never expire.
func (t *txn) Touch(context.Context, string) error { return nil }
