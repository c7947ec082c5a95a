package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sqin/subtitles/internal/clips"
	"github.com/sqin/subtitles/internal/jobs"
	"github.com/sqin/subtitles/internal/library"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query().Get("q")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	highlight := r.URL.Query().Get("hl") == "1"

	response, err := s.search.Search(r.Context(), query, limit, highlight)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type generateClipRequest struct {
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type generateClipResponse struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audio_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	s.handleGenerateClip(w, r, library.KindAudio)
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	s.handleGenerateClip(w, r, library.KindVideo)
}

func (s *Server) handleGenerateClip(w http.ResponseWriter, r *http.Request, kind library.MediaKind) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generateClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Season <= 0 || req.Episode <= 0 {
		writeError(w, http.StatusBadRequest, "season and episode are required")
		return
	}
	if req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "start_time and end_time are required")
		return
	}

	outcome, err := s.clips.Generate(r.Context(), kind, req.Season, req.Episode, req.StartTime, req.EndTime)
	if err != nil {
		if errors.Is(err, clips.ErrInvalidWindow) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := generateClipResponse{
		Success: outcome.Success,
		Message: outcome.Message,
	}
	if outcome.Success {
		if kind == library.KindVideo {
			response.VideoURL = outcome.URL
		} else {
			response.AudioURL = outcome.URL
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    "api",
		DedupeKey: jobs.KindReindex,
		Kind:      jobs.KindReindex,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  job.ID,
		"created": created,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
