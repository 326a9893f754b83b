package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/storm-radar-overlay/internal/events"
)

// handleEvents streams bus notifications as Server-Sent Events until the
// client disconnects or the bus drops the subscription.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Streams outlive the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := r.Header.Get("X-Client-Id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	ch := s.deps.Events.Subscribe(clientID)
	defer s.deps.Events.Unsubscribe(clientID, ch)
	s.logger.Debug("sse client connected", "client", clientID)

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, ": connected %s\n\n", clientID); err != nil {
		return
	}
	_ = rc.Flush()

	keepAlive := s.deps.Clock.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "client", clientID)
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := events.WriteSSE(w, n); err != nil {
				s.logger.Warn("sse write failed", "client", clientID, "error", err)
				return
			}
			_ = rc.Flush()
		case <-keepAlive.Chan():
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
