package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// KVStore implements domain.TxRunner on the ledger_kv and ledger_counters
// tables. Each call runs in a SERIALIZABLE transaction; a serialization
// failure surfaces as an error and the call has no effect.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore creates a KVStore on pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Atomic runs fn in one SERIALIZABLE transaction.
func (s *KVStore) Atomic(ctx context.Context, fn func(kv domain.KV) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txKV{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit ledger tx: %w", err)
	}
	return nil
}

type txKV struct {
	tx pgx.Tx
}

func (k *txKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := k.tx.QueryRow(ctx, `SELECT value FROM ledger_kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return v, true, nil
}

func (k *txKV) Set(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO ledger_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := k.tx.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

func (k *txKV) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := k.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_kv WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has %s: %w", key, err)
	}
	return exists, nil
}

func (k *txKV) Incr(ctx context.Context, key string) (uint64, error) {
	const query = `
		INSERT INTO ledger_counters (key, value) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET value = ledger_counters.value + 1
		RETURNING value`
	var n int64
	if err := k.tx.QueryRow(ctx, query, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: incr %s: %w", key, err)
	}
	return uint64(n), nil
}

func (k *txKV) Touch(ctx context.Context, key string) error {
	if _, err := k.tx.Exec(ctx, `UPDATE ledger_kv SET touched_at = NOW() WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: touch %s: %w", key, err)
	}
	return nil
}
