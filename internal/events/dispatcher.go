// Package events delivers committed ledger events to their consumers: the
// log, the Redis signal bus, the Postgres audit log, operator notifications
// and signed webhooks.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Sink is one delivery target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt domain.Event) error
}

// drainTimeout bounds delivery of events still queued at shutdown.
const drainTimeout = 5 * time.Second

// Dispatcher implements domain.EventSink. Publish queues the event and
// returns immediately; Run delivers queued events to every sink in order. A
// failing sink is logged and never blocks the others.
type Dispatcher struct {
	sinks   []Sink
	queue   chan domain.Event
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher with a queue of size buffer.
func NewDispatcher(buffer int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan domain.Event, buffer),
		logger: logger.With(slog.String("component", "events")),
	}
}

// Publish enqueues evt. When the queue is full the event is dropped.
func (d *Dispatcher) Publish(ctx context.Context, evt domain.Event) {
	select {
	case d.queue <- evt:
	default:
		n := d.dropped.Add(1)
		d.logger.WarnContext(ctx, "events: queue full, event dropped",
			slog.String("topic", string(evt.Topic)),
			slog.String("market_id", evt.MarketID),
			slog.Int64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Run delivers events until ctx is canceled, then drains what is queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("events: dispatcher started", slog.Int("sinks", len(d.sinks)))
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case evt := <-d.queue:
			_ = d.Deliver(ctx, evt)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case evt := <-d.queue:
			_ = d.Deliver(ctx, evt)
		default:
			return
		}
	}
}

// Deliver sends evt to every sink synchronously and joins their failures.
func (d *Dispatcher) Deliver(ctx context.Context, evt domain.Event) error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, evt); err != nil {
			d.logger.ErrorContext(ctx, "events: sink failed",
				slog.String("sink", s.Name()),
				slog.String("topic", string(evt.Topic)),
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventSink = (*Dispatcher)(nil)
