package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// MarketHistorySource reads the audit trail recorded for one market.
type MarketHistorySource interface {
	MarketHistory(ctx context.Context, marketID string, limit int) ([]domain.AuditEntry, error)
}

// HistoryHandler serves a market's audit trail. It is registered only when
// the audit log is configured.
type HistoryHandler struct {
	markets MarketService
	source  MarketHistorySource
	logger  *slog.Logger
}

func NewHistoryHandler(markets MarketService, source MarketHistorySource, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{markets: markets, source: source, logger: logger}
}

type historyEntry struct {
	ID     int64          `json:"id"`
	Event  string         `json:"event"`
	Detail map[string]any `json:"detail,omitempty"`
	At     string         `json:"at"`
}

// MarketHistory lists audit entries for a market, oldest first.
// GET /api/markets/{id}/history?limit=N
func (h *HistoryHandler) MarketHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.markets.Market(r.Context(), id); err != nil {
		writeLedgerError(w, r, h.logger, "market history", err)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	entries, err := h.source.MarketHistory(r.Context(), id, limit)
	if err != nil {
		writeLedgerError(w, r, h.logger, "market history", err)
		return
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			ID:     e.ID,
			Event:  e.Event,
			Detail: e.Detail,
			At:     e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "entries": out})
}
