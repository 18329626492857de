package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleFrames streams a view's frames as Server-Sent Events.
//
// The current frame is sent first so late subscribers can draw at once.
// Frames are dropped for clients that fall behind, and the stream ends
// when the view is deleted.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Get(chi.URLParam(r, "viewID"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID, frames := v.Subscribe()
	defer v.Unsubscribe(clientID)

	logger := s.logger.With("view", v.ID, "client", clientID)
	logger.Info("frame stream opened", "remote_addr", r.RemoteAddr)

	if err := writeSSEEvent(w, flusher, "frame", v.Frame()); err != nil {
		logger.Debug("frame stream write failed", "error", err)
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("frame stream closed")
			return

		case f, ok := <-frames:
			if !ok {
				writeSSEEvent(w, flusher, "closed", map[string]string{"view_id": v.ID})
				logger.Info("view closed, ending frame stream")
				return
			}
			if err := writeSSEEvent(w, flusher, "frame", f); err != nil {
				logger.Debug("frame stream write failed", "error", err)
				return
			}

		case t := <-heartbeat.C:
			if err := writeSSEEvent(w, flusher, "heartbeat", map[string]int64{"t": t.Unix()}); err != nil {
				return
			}
		}
	}
}

// writeSSEEvent writes one event and flushes it.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
