// Package notify fans ledger notifications out to operator channels
// (Telegram, Discord). Notifications can be filtered by event topic so
// operators receive only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify forwards
// only topics in the allowed set; NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	topics  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over senders. An empty topics list allows
// every topic.
func NewNotifier(senders []Sender, topics []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			allowed[t] = true
		}
	}
	return &Notifier{
		senders: senders,
		topics:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Wants reports whether topic passes the filter.
func (n *Notifier) Wants(topic string) bool {
	return len(n.topics) == 0 || n.topics[topic]
}

// Notify sends to all senders if topic passes the filter.
func (n *Notifier) Notify(ctx context.Context, topic, title, message string) error {
	if !n.Wants(topic) {
		n.logger.DebugContext(ctx, "notifier: topic filtered out", slog.String("topic", topic))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to all senders regardless of topic.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender. One failing sender does not stop the
// others; all failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
