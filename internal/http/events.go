package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"semaphore/reports/internal/logger"
)

// handleGroupEvents streams change notifications of one group as Server-Sent
// Events. Every change is an "invalidate" event; clients refetch what they show.
func (s *Server) handleGroupEvents(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "groupId", "group_id")
	if !ok {
		return
	}
	if _, err := s.store.Queries.GetGroup(r.Context(), groupID); err != nil {
		s.lookupError(w, r, err, "group_not_found")
		return
	}
	s.streamChanges(w, r, uuidString(groupID))
}

func (s *Server) streamChanges(w http.ResponseWriter, r *http.Request, groupID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	changes, err := s.broker.Subscribe(r.Context(), groupID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			payload, err := json.Marshal(change)
			if err != nil {
				logger.Log.WithError(err).Warn("encode change failed")
				continue
			}
			fmt.Fprintf(w, "event: invalidate\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
