package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sqin/subtitles/internal/clips"
	"github.com/sqin/subtitles/internal/jobs"
	"github.com/sqin/subtitles/internal/library"
	"github.com/sqin/subtitles/internal/persistence"
	"github.com/sqin/subtitles/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearch struct {
	response search.Response
	err      error

	lastQuery     string
	lastLimit     int
	lastHighlight bool
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int, highlight bool) (search.Response, error) {
	f.lastQuery = query
	f.lastLimit = limit
	f.lastHighlight = highlight
	if f.err != nil {
		return search.Response{}, f.err
	}
	response := f.response
	response.Query = query
	return response, nil
}

type fakeStats struct {
	stats persistence.Stats
	err   error
}

func (f *fakeStats) Stats(context.Context) (persistence.Stats, error) {
	if f.err != nil {
		return persistence.Stats{}, f.err
	}
	return f.stats, nil
}

type fakeClips struct {
	outcome clips.Outcome
	err     error

	lastKind    library.MediaKind
	lastSeason  int
	lastEpisode int
	lastStart   string
	lastEnd     string
}

func (f *fakeClips) Generate(_ context.Context, kind library.MediaKind, season, episode int, startTS, endTS string) (clips.Outcome, error) {
	f.lastKind = kind
	f.lastSeason = season
	f.lastEpisode = episode
	f.lastStart = startTS
	f.lastEnd = endTS
	return f.outcome, f.err
}

func newTestServer(opts ...Option) (*Server, *fakeSearch, *fakeStats, *fakeClips, *jobs.Queue) {
	searchSvc := &fakeSearch{
		response: search.Response{
			Total: 1,
			Results: []search.Result{{
				Season: 1, Episode: 1, Filename: "S01E01.ass", DialogueIndex: 4,
				StartTime: "0:03:11.39", EndTime: "0:03:13.88",
				StartDisplay: "03:11", EndDisplay: "03:13",
				ChineseText: "我一直热爱火车", EnglishText: "I've always loved trains.",
			}},
		},
	}
	statsSvc := &fakeStats{
		stats: persistence.Stats{
			TotalFiles:     2,
			TotalDialogues: 40,
			Seasons: map[string]persistence.SeasonStats{
				"1": {EpisodeCount: 2, Episodes: []int{1, 2}},
			},
		},
	}
	clipSvc := &fakeClips{outcome: clips.Outcome{Success: true, URL: "/temp_audio/s01e01_x.mp3"}}
	queue := jobs.NewQueue(1)
	server := NewServer(searchSvc, statsSvc, clipSvc, queue, opts...)
	return server, searchSvc, statsSvc, clipSvc, queue
}

func doRequest(server *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Search(t *testing.T) {
	server, searchSvc, _, _, _ := newTestServer()

	for _, target := range []string{"/search?q=trains&limit=50&hl=1", "/api/search?q=trains&limit=50&hl=1"} {
		rec := doRequest(server, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)

		var got search.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "trains", got.Query)
		assert.Equal(t, 1, got.Total)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "03:11", got.Results[0].StartDisplay)

		assert.Equal(t, "trains", searchSvc.lastQuery)
		assert.Equal(t, 50, searchSvc.lastLimit)
		assert.True(t, searchSvc.lastHighlight)
	}
}

func TestServer_SearchBadLimit(t *testing.T) {
	server, _, _, _, _ := newTestServer()

	rec := doRequest(server, http.MethodGet, "/search?q=x&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(server, http.MethodGet, "/search?q=x&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SearchError(t *testing.T) {
	server, searchSvc, _, _, _ := newTestServer()
	searchSvc.err = errors.New("index unavailable")

	rec := doRequest(server, http.MethodGet, "/search?q=x", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "index unavailable")
}

func TestServer_SearchMethodNotAllowed(t *testing.T) {
	server, _, _, _, _ := newTestServer()

	rec := doRequest(server, http.MethodPost, "/search?q=x", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Stats(t *testing.T) {
	server, _, _, _, _ := newTestServer()

	rec := doRequest(server, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got persistence.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TotalFiles)
	assert.Equal(t, 40, got.TotalDialogues)
	require.Contains(t, got.Seasons, "1")
	assert.Equal(t, []int{1, 2}, got.Seasons["1"].Episodes)
}

func TestServer_StatsUnavailable(t *testing.T) {
	server, _, statsSvc, _, _ := newTestServer()
	statsSvc.err = errors.New("db locked")

	rec := doRequest(server, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_GenerateAudio(t *testing.T) {
	server, _, _, clipSvc, _ := newTestServer()

	body := []byte(`{"season":1,"episode":5,"start_time":"0:03:11.39","end_time":"0:03:13.88"}`)
	rec := doRequest(server, http.MethodPost, "/api/generate_audio", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got generateClipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "/temp_audio/s01e01_x.mp3", got.AudioURL)
	assert.Empty(t, got.VideoURL)

	assert.Equal(t, library.KindAudio, clipSvc.lastKind)
	assert.Equal(t, 1, clipSvc.lastSeason)
	assert.Equal(t, 5, clipSvc.lastEpisode)
	assert.Equal(t, "0:03:11.39", clipSvc.lastStart)
}

func TestServer_GenerateVideo(t *testing.T) {
	server, _, _, clipSvc, _ := newTestServer()
	clipSvc.outcome = clips.Outcome{Success: true, URL: "/temp_video/s01e01_x.mp4"}

	body := []byte(`{"season":1,"episode":1,"start_time":"0:00:01.00","end_time":"0:00:02.00"}`)
	rec := doRequest(server, http.MethodPost, "/generate_video", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got generateClipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "/temp_video/s01e01_x.mp4", got.VideoURL)
	assert.Equal(t, library.KindVideo, clipSvc.lastKind)
}

func TestServer_GenerateClipMissingSource(t *testing.T) {
	server, _, _, clipSvc, _ := newTestServer()
	clipSvc.outcome = clips.Outcome{Success: false, Message: "no audio file found for S01E01"}

	body := []byte(`{"season":1,"episode":1,"start_time":"0:00:01.00","end_time":"0:00:02.00"}`)
	rec := doRequest(server, http.MethodPost, "/api/generate_audio", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var got generateClipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Success)
	assert.Contains(t, got.Message, "no audio file")
}

func TestServer_GenerateClipValidation(t *testing.T) {
	server, _, _, clipSvc, _ := newTestServer()

	rec := doRequest(server, http.MethodPost, "/api/generate_audio", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(server, http.MethodPost, "/api/generate_audio",
		[]byte(`{"season":0,"episode":1,"start_time":"0:00:01.00","end_time":"0:00:02.00"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(server, http.MethodPost, "/api/generate_audio",
		[]byte(`{"season":1,"episode":1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	clipSvc.err = clips.ErrInvalidWindow
	rec = doRequest(server, http.MethodPost, "/api/generate_audio",
		[]byte(`{"season":1,"episode":1,"start_time":"0:00:05.00","end_time":"0:00:02.00"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ReindexAndJobLookup(t *testing.T) {
	server, _, _, _, _ := newTestServer()

	rec := doRequest(server, http.MethodPost, "/api/reindex", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var enqueue struct {
		JobID   string `json:"job_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enqueue))
	assert.True(t, enqueue.Created)
	require.NotEmpty(t, enqueue.JobID)

	// Resubmitting while the job is active returns the same job.
	rec = doRequest(server, http.MethodPost, "/api/reindex", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var again struct {
		JobID   string `json:"job_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.False(t, again.Created)
	assert.Equal(t, enqueue.JobID, again.JobID)

	rec = doRequest(server, http.MethodGet, "/api/jobs/"+enqueue.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.KindReindex, job.Kind)
	assert.Equal(t, jobs.StatusPending, job.Status)

	rec = doRequest(server, http.MethodGet, "/api/jobs/job-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobEventsStreamUntilTerminal(t *testing.T) {
	server, _, _, _, queue := newTestServer()

	release := make(chan struct{})
	queue.Start(func(_ context.Context, _ *jobs.Job) error {
		<-release
		return nil
	})
	defer queue.Stop()

	job, _ := queue.Enqueue(jobs.EnqueueRequest{Source: "api", DedupeKey: jobs.KindReindex, Kind: jobs.KindReindex})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("SSE stream did not terminate after the job finished")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "data: ")
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
}

func TestServer_RootWithoutUI(t *testing.T) {
	server, _, _, _, _ := newTestServer(WithVersion("1.2.3"))

	rec := doRequest(server, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subtitle search api")
	assert.Contains(t, rec.Body.String(), "1.2.3")
}

func TestServer_UnknownAPIPathIs404(t *testing.T) {
	server, _, _, _, _ := newTestServer()

	rec := doRequest(server, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServesTempClips(t *testing.T) {
	audioDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(audioDir, "s01e01_x.mp3"), []byte("mp3-bytes"), 0o644))

	server, _, _, _, _ := newTestServer(WithTempDirs(audioDir, ""))

	rec := doRequest(server, http.MethodGet, "/temp_audio/s01e01_x.mp3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp3-bytes", rec.Body.String())
}

func TestServer_CORSHeaders(t *testing.T) {
	server, _, _, _, _ := newTestServer(WithAllowedOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/generate_audio", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
