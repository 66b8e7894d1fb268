// Package store maps ledger entities onto the host key-value store. A Tx is
// scoped to one host transaction; Runner executes operations inside one and
// publishes their events after commit.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Tx is the typed view of a single host transaction.
type Tx struct {
	kv     domain.KV
	events []domain.Event
}

// NewTx wraps kv.
func NewTx(kv domain.KV) *Tx {
	return &Tx{kv: kv}
}

// KV exposes the raw transaction for ports (asset transfer, id generation)
// that write through it.
func (t *Tx) KV() domain.KV { return t.kv }

// Market loads a market by id.
func (t *Tx) Market(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	ok, err := t.getJSON(ctx, MarketKey(id), &m)
	if err != nil {
		return m, err
	}
	if !ok {
		return m, domain.ErrMarketNotFound
	}
	return m, nil
}

// HasMarket reports whether a market with id exists.
func (t *Tx) HasMarket(ctx context.Context, id string) (bool, error) {
	ok, err := t.kv.Has(ctx, MarketKey(id))
	if err != nil {
		return false, fmt.Errorf("store: has market %s: %w", id, err)
	}
	return ok, nil
}

// PutMarket writes a market record.
func (t *Tx) PutMarket(ctx context.Context, m domain.Market) error {
	return t.setJSON(ctx, MarketKey(m.ID), m)
}

// NextMarketSeq increments and returns the market counter. The first value
// is 1.
func (t *Tx) NextMarketSeq(ctx context.Context) (uint64, error) {
	n, err := t.kv.Incr(ctx, MarketCounterKey)
	if err != nil {
		return 0, fmt.Errorf("store: incr market counter: %w", err)
	}
	return n, nil
}

// Position loads (marketID, user). ok is false if none was ever written.
func (t *Tx) Position(ctx context.Context, marketID, user string) (domain.Position, bool, error) {
	var p domain.Position
	ok, err := t.getJSON(ctx, PositionKey(marketID, user), &p)
	return p, ok, err
}

// PutPosition writes a position and records the user in the market's index
// on first write.
func (t *Tx) PutPosition(ctx context.Context, p domain.Position) error {
	key := PositionKey(p.MarketID, p.User)
	exists, err := t.kv.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("store: has position: %w", err)
	}
	if err := t.setJSON(ctx, key, p); err != nil {
		return err
	}
	if exists {
		return nil
	}
	users, err := t.PositionUsers(ctx, p.MarketID)
	if err != nil {
		return err
	}
	return t.setJSON(ctx, PositionIndexKey(p.MarketID), append(users, p.User))
}

// PositionUsers lists users with a position in marketID, in first-write order.
func (t *Tx) PositionUsers(ctx context.Context, marketID string) ([]string, error) {
	var users []string
	if _, err := t.getJSON(ctx, PositionIndexKey(marketID), &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Admin returns the stored administrator. ok is false before initialization.
func (t *Tx) Admin(ctx context.Context) (string, bool, error) {
	raw, ok, err := t.kv.Get(ctx, AdminKey)
	if err != nil {
		return "", false, fmt.Errorf("store: get admin: %w", err)
	}
	return string(raw), ok, nil
}

// SetAdmin writes the administrator record.
func (t *Tx) SetAdmin(ctx context.Context, admin string) error {
	if err := t.kv.Set(ctx, AdminKey, []byte(admin)); err != nil {
		return fmt.Errorf("store: set admin: %w", err)
	}
	return nil
}

// Emit buffers an event. It is published only if the transaction commits.
func (t *Tx) Emit(topic domain.EventTopic, marketID string, ts uint64, payload map[string]any) {
	t.events = append(t.events, domain.Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		MarketID:  marketID,
		Timestamp: ts,
		Payload:   payload,
	})
}

// Events returns the events buffered so far.
func (t *Tx) Events() []domain.Event { return t.events }

func (t *Tx) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := t.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("store: get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (t *Tx) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := t.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// IncrCounter implements KV.Incr on top of Get/Set for hosts without a native
// counter. The value is stored as a decimal string.
func IncrCounter(ctx context.Context, kv domain.KV, key string) (uint64, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	var n uint64
	if ok {
		n, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("store: counter %s: %w", key, err)
		}
	}
	n++
	if err := kv.Set(ctx, key, []byte(strconv.FormatUint(n, 10))); err != nil {
		return 0, err
	}
	return n, nil
}
