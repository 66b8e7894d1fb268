package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// EventsHandler replays committed ledger events from the bus stream so a
// websocket client can catch up after reconnecting.
type EventsHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading stream from bus.
func NewEventsHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, stream: stream, logger: logger}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// List returns events after the stream id in ?after (default "0"), at most
// ?limit of them. next is the id to pass as ?after on the following call.
// GET /api/events
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := defaultEventPage
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventPage)
	}

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: event replay failed",
			slog.String("stream", h.stream),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	out := make([]streamEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, streamEvent{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"next":   next,
	})
}
