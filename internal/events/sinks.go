package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/notify"
)

// Default signal bus names.
const (
	DefaultChannel = "ch:ledger"
	DefaultStream  = "stream:ledger"
)

// LogSink writes each event to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, evt domain.Event) error {
	s.logger.InfoContext(ctx, "events: "+string(evt.Topic),
		slog.String("event_id", evt.ID),
		slog.String("market_id", evt.MarketID),
		slog.Uint64("timestamp", evt.Timestamp),
		slog.Any("payload", evt.Payload),
	)
	return nil
}

// BusSink publishes events as JSON on a pub/sub channel and appends them to
// a trimmed stream for replay.
type BusSink struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewBusSink creates a BusSink. Empty names fall back to DefaultChannel and
// DefaultStream.
func NewBusSink(bus domain.SignalBus, channel, stream string) *BusSink {
	if channel == "" {
		channel = DefaultChannel
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &BusSink{bus: bus, channel: channel, stream: stream}
}

func (s *BusSink) Name() string { return "signal_bus" }

func (s *BusSink) Deliver(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", evt.Topic, err)
	}
	if err := s.bus.Publish(ctx, s.channel, payload); err != nil {
		return err
	}
	return s.bus.StreamAppend(ctx, s.stream, payload)
}

// AuditSink records events in the audit log, where the archiver later
// picks them up.
type AuditSink struct {
	store domain.AuditStore
}

func NewAuditSink(store domain.AuditStore) *AuditSink {
	return &AuditSink{store: store}
}

func (s *AuditSink) Name() string { return "audit" }

func (s *AuditSink) Deliver(ctx context.Context, evt domain.Event) error {
	return s.store.Log(ctx, AuditEvent(evt.Topic), AuditDetail(evt))
}

// AuditEvent is the audit_log event name for a ledger topic.
func AuditEvent(topic domain.EventTopic) string {
	return "ledger." + string(topic)
}

// AuditTopics lists the audit event names of every ledger topic.
func AuditTopics() []string {
	topics := []domain.EventTopic{
		domain.TopicMarketCreated,
		domain.TopicMarketCanceled,
		domain.TopicCollateralDeposited,
		domain.TopicCollateralWithdrawn,
		domain.TopicPositionUpdated,
		domain.TopicMarketResolved,
		domain.TopicPositionSettled,
	}
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = AuditEvent(t)
	}
	return out
}

// AuditDetail flattens evt into an audit detail document.
func AuditDetail(evt domain.Event) map[string]any {
	return map[string]any{
		"event_id":  evt.ID,
		"topic":     string(evt.Topic),
		"market_id": evt.MarketID,
		"timestamp": evt.Timestamp,
		"payload":   evt.Payload,
	}
}

// NotifySink turns events into operator notifications. The notifier's topic
// filter decides which events are sent.
type NotifySink struct {
	notifier *notify.Notifier
}

func NewNotifySink(n *notify.Notifier) *NotifySink {
	return &NotifySink{notifier: n}
}

func (s *NotifySink) Name() string { return "notify" }

func (s *NotifySink) Deliver(ctx context.Context, evt domain.Event) error {
	if !s.notifier.Wants(string(evt.Topic)) {
		return nil
	}
	title, message := Describe(evt)
	return s.notifier.Notify(ctx, string(evt.Topic), title, message)
}
