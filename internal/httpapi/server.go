package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sqin/subtitles/internal/clips"
	"github.com/sqin/subtitles/internal/jobs"
	"github.com/sqin/subtitles/internal/library"
	"github.com/sqin/subtitles/internal/persistence"
	"github.com/sqin/subtitles/internal/search"
)

type searchService interface {
	Search(ctx context.Context, query string, limit int, highlight bool) (search.Response, error)
}

type statsService interface {
	Stats(ctx context.Context) (persistence.Stats, error)
}

type clipService interface {
	Generate(ctx context.Context, kind library.MediaKind, season, episode int, startTS, endTS string) (clips.Outcome, error)
}

type Server struct {
	search  searchService
	stats   statsService
	clips   clipService
	queue   *jobs.Queue
	version string

	uiEnabled   bool
	uiStaticDir string

	tempAudioDir string
	tempVideoDir string

	allowedOrigins []string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithTempDirs(audioDir, videoDir string) Option {
	return func(s *Server) {
		s.tempAudioDir = audioDir
		s.tempVideoDir = videoDir
	}
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func NewServer(searchSvc searchService, statsSvc statsService, clipSvc clipService, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		search:         searchSvc,
		stats:          statsSvc,
		clips:          clipSvc,
		queue:          queue,
		version:        "dev",
		allowedOrigins: []string{"*"},
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// routes registers every API endpoint both bare and under /api/: the
// original deployment reached the backend directly and through a dev-server
// proxy that only forwarded /api-prefixed paths.
func (s *Server) routes() {
	for _, prefix := range []string{"", "/api"} {
		s.mux.HandleFunc(prefix+"/search", s.handleSearch)
		s.mux.HandleFunc(prefix+"/stats", s.handleStats)
		s.mux.HandleFunc(prefix+"/generate_audio", s.handleGenerateAudio)
		s.mux.HandleFunc(prefix+"/generate_video", s.handleGenerateVideo)
		s.mux.HandleFunc(prefix+"/reindex", s.handleReindex)
	}
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)

	if s.tempAudioDir != "" {
		s.mux.Handle("/temp_audio/", http.StripPrefix("/temp_audio/",
			http.FileServer(http.Dir(s.tempAudioDir))))
	}
	if s.tempVideoDir != "" {
		s.mux.Handle("/temp_video/", http.StripPrefix("/temp_video/",
			http.FileServer(http.Dir(s.tempVideoDir))))
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowed := s.resolveOrigin(origin); allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolveOrigin(origin string) string {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}

// handleRoot serves the SPA when a UI directory is configured, with
// non-file paths falling back to index.html. Without a UI it answers with a
// small service descriptor.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if !s.uiEnabled || s.uiStaticDir == "" {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "subtitle search api",
			"version": s.version,
			"endpoints": []string{
				"/search", "/stats",
				"/api/generate_audio", "/api/generate_video",
				"/api/reindex", "/api/jobs/{id}",
			},
		})
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
