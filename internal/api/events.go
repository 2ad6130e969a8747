package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/seantiz/healthstat/internal/model"
)

// handleJobEvents streams a job's status transitions as server-sent events.
// The stream opens with the current status and ends with a "done" event
// carrying the terminal status.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(r)
	if !ok {
		s.writeJobError(w, http.StatusNotFound, reasonInvalidJobID)
		return
	}

	sub, ok := s.pool.Broker().Subscribe(id)
	if !ok {
		s.writeJobError(w, http.StatusNotFound, reasonInvalidJobID)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if sub.Final {
		_ = writeSSEEvent(w, "done", sub.Last)
		flush()
		return
	}
	if err := writeSSEEvent(w, "status", sub.Last); err != nil {
		return
	}
	flush()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			eventType := "status"
			if model.IsTerminal(ev.Status) {
				eventType = "done"
			}
			if err := writeSSEEvent(w, eventType, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			flush()
			if eventType == "done" {
				return
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEEvent writes a named SSE event with a JSON payload.
func writeSSEEvent(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}
