package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pocketomega/codex-core/internal/session"
)

// handleStream is the single-reader SSE endpoint. A second connection
// attempt while one is already active fails with 409.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rt, ok := s.Store.TryGet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if !rt.AcquireStream() {
		writeError(w, http.StatusConflict, "a stream is already connected for this session")
		return
	}
	defer rt.ReleaseStream()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-rt.Events():
			if !open {
				return
			}
			writeFrame(w, ev)
			flusher.Flush()
		}
	}
}

// writeFrame emits one SSE frame: "event: <type>\ndata: <json>\n\n".
func writeFrame(w http.ResponseWriter, ev session.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
