package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// DefaultStreamMaxLen bounds the event stream, trimmed approximately on
// every append.
const DefaultStreamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus. Committed ledger events go out on
// Pub/Sub for live subscribers and into a trimmed stream for replay.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus creates a SignalBus. maxLen <= 0 uses DefaultStreamMaxLen.
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns payloads published on channel; a glob pattern uses
// PSUBSCRIBE. The returned channel closes when ctx ends or the
// subscription drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go sb.pump(ctx, pubsub, out)
	return out, nil
}

func (sb *SignalBus) pump(ctx context.Context, pubsub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

// StreamAppend adds payload to stream and trims it to about maxLen entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries strictly after lastID ("0" reads
// from the start). It never blocks; an empty stream yields no entries.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "" {
		lastID = "0"
	}
	entries, err := sb.rdb.XRangeN(ctx, stream, "("+lastID, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	out := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		data, ok := payloadBytes(e.Values["payload"])
		if !ok {
			continue
		}
		out = append(out, domain.StreamMessage{ID: e.ID, Payload: data})
	}
	return out, nil
}

func payloadBytes(v any) ([]byte, bool) {
	switch p := v.(type) {
	case string:
		return []byte(p), true
	case []byte:
		return p, true
	default:
		return nil, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
