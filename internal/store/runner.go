package store

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// InstanceKeys are touched before every operation so hosts with expiry keep
// the ledger's global records alive.
var InstanceKeys = []string{AdminKey, MarketCounterKey}

// Runner executes ledger operations inside one host transaction each.
type Runner struct {
	host   domain.TxRunner
	sink   domain.EventSink
	logger *slog.Logger
}

// NewRunner creates a Runner. sink may be nil.
func NewRunner(host domain.TxRunner, sink domain.EventSink, logger *slog.Logger) *Runner {
	return &Runner{
		host:   host,
		sink:   sink,
		logger: logger.With(slog.String("component", "store")),
	}
}

// Do runs fn in a fresh transaction. Events fn emitted are published after
// the transaction commits and dropped if it does not.
func (r *Runner) Do(ctx context.Context, fn func(tx *Tx) error) error {
	var events []domain.Event
	err := r.host.Atomic(ctx, func(kv domain.KV) error {
		for _, key := range InstanceKeys {
			if err := kv.Touch(ctx, key); err != nil {
				return err
			}
		}
		tx := NewTx(kv)
		if err := fn(tx); err != nil {
			return err
		}
		events = tx.Events()
		return nil
	})
	if err != nil {
		return err
	}

	if r.sink == nil {
		return nil
	}
	for _, evt := range events {
		r.sink.Publish(ctx, evt)
	}
	if len(events) > 0 {
		r.logger.Debug("store: published events", slog.Int("count", len(events)))
	}
	return nil
}
