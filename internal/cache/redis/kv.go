package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/store"
)

// KVConfig tunes the Redis ledger host.
type KVConfig struct {
	// Prefix namespaces every ledger key.
	Prefix string
	// TTL is refreshed on every key a transaction reads, writes or touches.
	// Zero keeps keys forever.
	TTL time.Duration
	// LockTTL bounds how long one transaction may hold the ledger lock.
	LockTTL time.Duration
	// LockWait bounds how long a transaction waits for the lock.
	LockWait time.Duration
}

const ledgerLock = "ledger"

// errLockLost reports a commit attempted after the ledger lock expired or
// passed to another holder.
var errLockLost = fmt.Errorf("redis: ledger lock lost before commit: %w", domain.ErrLockHeld)

// KVStore implements domain.TxRunner on Redis. Transactions are serialized by
// the ledger lock; reads go to Redis, writes are buffered and committed in
// one MULTI/EXEC pipeline that only runs while the lock is still ours.
type KVStore struct {
	rdb   *redis.Client
	locks *LockManager
	cfg   KVConfig
}

// NewKVStore creates a KVStore.
func NewKVStore(c *Client, locks *LockManager, cfg KVConfig) *KVStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "ledger:"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 10 * time.Second
	}
	return &KVStore{rdb: c.Underlying(), locks: locks, cfg: cfg}
}

// Atomic runs fn while holding the ledger lock.
func (s *KVStore) Atomic(ctx context.Context, fn func(kv domain.KV) error) error {
	lease, err := s.locks.LeaseWait(ctx, ledgerLock, s.cfg.LockTTL, s.cfg.LockWait, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("redis: ledger tx: %w", err)
	}
	defer lease.Release()

	tx := &txKV{
		store:   s,
		writes:  make(map[string][]byte),
		touched: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(ctx, lease)
}

type txKV struct {
	store   *KVStore
	writes  map[string][]byte
	touched map[string]struct{}
}

func (k *txKV) key(key string) string { return k.store.cfg.Prefix + key }

func (k *txKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := k.writes[key]; ok {
		return v, true, nil
	}
	v, err := k.store.rdb.Get(ctx, k.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	k.touched[key] = struct{}{}
	return v, true, nil
}

func (k *txKV) Set(_ context.Context, key string, value []byte) error {
	k.writes[key] = append([]byte(nil), value...)
	return nil
}

func (k *txKV) Has(ctx context.Context, key string) (bool, error) {
	if _, ok := k.writes[key]; ok {
		return true, nil
	}
	n, err := k.store.rdb.Exists(ctx, k.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: exists %s: %w", key, err)
	}
	if n > 0 {
		k.touched[key] = struct{}{}
	}
	return n > 0, nil
}

func (k *txKV) Incr(ctx context.Context, key string) (uint64, error) {
	return store.IncrCounter(ctx, k, key)
}

func (k *txKV) Touch(_ context.Context, key string) error {
	k.touched[key] = struct{}{}
	return nil
}

func (k *txKV) commit(ctx context.Context, lease *Lease) error {
	if len(k.writes) == 0 && (len(k.touched) == 0 || k.store.cfg.TTL <= 0) {
		return nil
	}
	ttl := k.store.cfg.TTL
	err := k.store.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		owner, err := rtx.Get(ctx, lease.Key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != lease.Token {
			return errLockLost
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, v := range k.writes {
				pipe.Set(ctx, k.key(key), v, ttl)
			}
			if ttl > 0 {
				for key := range k.touched {
					if _, written := k.writes[key]; !written {
						pipe.Expire(ctx, k.key(key), ttl)
					}
				}
			}
			return nil
		})
		return err
	}, lease.Key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return errLockLost
	case errors.Is(err, errLockLost):
		return err
	case err != nil:
		return fmt.Errorf("redis: commit ledger tx: %w", err)
	}
	return nil
}
