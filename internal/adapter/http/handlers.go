package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/eventcast/internal/domain/event"
)

// StreamStatus is what the health endpoint needs from the broadcaster.
type StreamStatus interface {
	SessionCount() int
	CurrentPosition(ctx context.Context) (event.Position, error)
	Done() <-chan struct{}
}

// Handlers holds the non-stream HTTP handlers.
type Handlers struct {
	Stream    StreamStatus
	Connected func() bool // event log connectivity, nil when not applicable
}

type healthStatus struct {
	Status   string         `json:"status"`
	Sessions int            `json:"sessions"`
	Position event.Position `json:"position"`
	Log      string         `json:"log"`
}

// Health reports the session count and the current log position. It answers
// 503 once the broadcaster has stopped or the log is unreachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	st := healthStatus{Status: "ok", Sessions: h.Stream.SessionCount(), Log: "ok"}

	select {
	case <-h.Stream.Done():
		st.Status = "stopped"
		writeJSON(w, http.StatusServiceUnavailable, st)
		return
	default:
	}

	if h.Connected != nil && !h.Connected() {
		st.Status, st.Log = "degraded", "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, st)
		return
	}

	pos, err := h.Stream.CurrentPosition(r.Context())
	if err != nil {
		st.Status, st.Log = "degraded", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, st)
		return
	}
	st.Position = pos
	writeJSON(w, http.StatusOK, st)
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusNotFound, "not_found")
}
