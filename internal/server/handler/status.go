package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports how the ledger process is configured.
type StatusHandler struct {
	Mode      string
	Backend   string
	StartedAt time.Time
	// Dropped reports events lost on a full dispatch queue; may be nil.
	Dropped func() int64
}

// GetStatus responds with mode, storage backend and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"backend":        h.Backend,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.Dropped != nil {
		resp["dropped_events"] = h.Dropped()
	}
	writeJSON(w, http.StatusOK, resp)
}
