// Package sqlite is an embedded ledger host backed by modernc.org/sqlite.
// A single connection serializes every transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ledger_kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	touched_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_counters (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// Store implements domain.TxRunner on a SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside one SQLite transaction.
func (s *Store) Atomic(ctx context.Context, fn func(kv domain.KV) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(&txKV{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

type txKV struct {
	tx *sql.Tx
}

func (k *txKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := k.tx.QueryRowContext(ctx, `SELECT value FROM ledger_kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return v, true, nil
}

func (k *txKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.tx.ExecContext(ctx, `
		INSERT INTO ledger_kv (key, value, touched_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, touched_at = excluded.touched_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: set %s: %w", key, err)
	}
	return nil
}

func (k *txKV) Has(ctx context.Context, key string) (bool, error) {
	var n int
	err := k.tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM ledger_kv WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: has %s: %w", key, err)
	}
	return n > 0, nil
}

func (k *txKV) Incr(ctx context.Context, key string) (uint64, error) {
	var n uint64
	err := k.tx.QueryRowContext(ctx, `
		INSERT INTO ledger_counters (key, value) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1
		RETURNING value`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: incr %s: %w", key, err)
	}
	return n, nil
}

func (k *txKV) Touch(ctx context.Context, key string) error {
	_, err := k.tx.ExecContext(ctx, `UPDATE ledger_kv SET touched_at = ? WHERE key = ?`, time.Now().Unix(), key)
	if err != nil {
		return fmt.Errorf("sqlite: touch %s: %w", key, err)
	}
	return nil
}
