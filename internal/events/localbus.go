package events

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// localStreamMax caps each in-process stream.
const localStreamMax = 10000

// LocalBus is an in-process domain.SignalBus for single-node deployments
// without Redis. Subscribers that fall behind lose messages rather than
// block publishers.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
	seq     uint64
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
	}
}

// Publish delivers payload to subscribers whose channel or trailing-*
// pattern matches.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, chans := range b.subs {
		if !matchChannel(pattern, channel) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe returns a channel that closes when ctx ends.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		close(ch)
	}()
	return ch, nil
}

// StreamAppend appends payload with a monotonically increasing id.
func (b *LocalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq, 10) + "-0",
		Payload: payload,
	})
	if len(msgs) > localStreamMax {
		msgs = msgs[len(msgs)-localStreamMax:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count messages after lastID ("0" or "" reads from
// the start).
func (b *LocalBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	after := streamSeq(lastID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if streamSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) uint64 {
	n, _ := strconv.ParseUint(strings.SplitN(id, "-", 2)[0], 10, 64)
	return n
}

func matchChannel(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}

var _ domain.SignalBus = (*LocalBus)(nil)
