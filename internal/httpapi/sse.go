package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// handleJobByID serves /api/jobs/{id} snapshots and /api/jobs/{id}/events
// SSE streams.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	stream := false
	if strings.HasSuffix(rest, "/events") {
		stream = true
		rest = strings.TrimSuffix(rest, "/events")
	}
	jobID := strings.TrimSuffix(rest, "/")
	if decoded, err := url.PathUnescape(jobID); err == nil {
		jobID = decoded
	}
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	job, ok := s.queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if !stream {
		writeJSON(w, http.StatusOK, job)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func() (terminal bool, ok bool) {
		job, exists := s.queue.Get(jobID)
		if !exists {
			return true, false
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return true, false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return true, false
		}
		flusher.Flush()
		return job.Status.Terminal(), true
	}

	if terminal, ok := send(); terminal || !ok {
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if terminal, ok := send(); terminal || !ok {
				return
			}
		}
	}
}
