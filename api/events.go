package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/erennakbas/tasksync/types"
)

// handleEvents streams announcements to one observer as server-sent events.
//
// Each announcement is written as
//
//	event: <kind>
//	data: <json payload>
//
// followed by a blank line. Comment lines (": ping") keep idle streams open.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	observer, err := s.observers.Join()
	if err != nil {
		s.error(w, "Service Unavailable", err, http.StatusServiceUnavailable)
		return
	}
	defer s.observers.Leave(observer.ID)

	// the stream outlives the server's WriteTimeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.WithError(err).Error("event stream cannot be flushed")
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, ok := <-observer.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				s.logger.WithField("observer_id", observer.ID).WithError(err).Debug("failed to write event")
				return
			}

		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}

		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent writes a single SSE frame for event.
func writeEvent(w io.Writer, event types.Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Kind, err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
	return err
}
