package clips

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sqin/subtitles/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	path  string
	found bool
	err   error
}

func (f *fakeLocator) Locate(context.Context, library.MediaKind, int, int) (string, bool, error) {
	return f.path, f.found, f.err
}

type fakeExtractor struct {
	audioCalls int
	videoCalls int
	lastSrc    string
	lastOut    string
	lastStart  float64
	lastDur    float64

	extractErr error
	probeDur   float64
	probeErr   error
}

func (f *fakeExtractor) record(src, out string, start, duration float64) error {
	f.lastSrc = src
	f.lastOut = out
	f.lastStart = start
	f.lastDur = duration
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(out, []byte("clip"), 0o644)
}

func (f *fakeExtractor) ExtractAudioClip(_ context.Context, src, out string, start, duration float64) error {
	f.audioCalls++
	return f.record(src, out, start, duration)
}

func (f *fakeExtractor) ExtractVideoClip(_ context.Context, src, out string, start, duration float64) error {
	f.videoCalls++
	return f.record(src, out, start, duration)
}

func (f *fakeExtractor) ProbeDuration(context.Context, string) (float64, error) {
	return f.probeDur, f.probeErr
}

func newTestService(t *testing.T, locator *fakeLocator, extractor *fakeExtractor, opts ...Option) (*Service, string, string) {
	t.Helper()
	audioDir := filepath.Join(t.TempDir(), "temp_audio")
	videoDir := filepath.Join(t.TempDir(), "temp_video")
	svc := NewService(locator, extractor, audioDir, videoDir, opts...)
	return svc, audioDir, videoDir
}

func TestService_GenerateAudioClip(t *testing.T) {
	locator := &fakeLocator{path: "/audio/show.s01e05.mp3", found: true}
	extractor := &fakeExtractor{probeErr: errors.New("no probe")}
	svc, audioDir, _ := newTestService(t, locator, extractor)

	outcome, err := svc.Generate(context.Background(), library.KindAudio, 1, 5, "0:03:11.39", "0:03:13.88")
	require.NoError(t, err)
	require.True(t, outcome.Success)

	assert.True(t, strings.HasPrefix(outcome.URL, "/temp_audio/s01e05_"), "url %q", outcome.URL)
	assert.True(t, strings.HasSuffix(outcome.URL, ".mp3"))
	assert.Equal(t, 1, extractor.audioCalls)
	assert.Equal(t, "/audio/show.s01e05.mp3", extractor.lastSrc)

	// Window padded by 2s each side.
	assert.InDelta(t, 189.39, extractor.lastStart, 0.001)
	assert.InDelta(t, 6.49, extractor.lastDur, 0.001)

	entries, err := os.ReadDir(audioDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_GenerateVideoClip(t *testing.T) {
	locator := &fakeLocator{path: "/videos/Show.S02.07.mkv", found: true}
	extractor := &fakeExtractor{probeErr: errors.New("no probe")}
	svc, _, _ := newTestService(t, locator, extractor)

	outcome, err := svc.Generate(context.Background(), library.KindVideo, 2, 7, "0:00:05.00", "0:00:08.00")
	require.NoError(t, err)
	require.True(t, outcome.Success)

	assert.True(t, strings.HasPrefix(outcome.URL, "/temp_video/s02e07_"))
	assert.True(t, strings.HasSuffix(outcome.URL, ".mp4"))
	assert.Equal(t, 1, extractor.videoCalls)
}

func TestService_GenerateClampsStartAtZero(t *testing.T) {
	locator := &fakeLocator{path: "/audio/a.s01e01.mp3", found: true}
	extractor := &fakeExtractor{probeErr: errors.New("no probe")}
	svc, _, _ := newTestService(t, locator, extractor)

	_, err := svc.Generate(context.Background(), library.KindAudio, 1, 1, "0:00:01.00", "0:00:03.00")
	require.NoError(t, err)

	assert.Zero(t, extractor.lastStart)
	assert.InDelta(t, 5.0, extractor.lastDur, 0.001)
}

func TestService_GenerateClampsEndToProbedDuration(t *testing.T) {
	locator := &fakeLocator{path: "/audio/a.s01e01.mp3", found: true}
	extractor := &fakeExtractor{probeDur: 100.0}
	svc, _, _ := newTestService(t, locator, extractor)

	// End plus padding would be 103s; the source is only 100s long.
	_, err := svc.Generate(context.Background(), library.KindAudio, 1, 1, "0:01:30.00", "0:01:41.00")
	require.NoError(t, err)

	assert.InDelta(t, 88.0, extractor.lastStart, 0.001)
	assert.InDelta(t, 12.0, extractor.lastDur, 0.001)
}

func TestService_GenerateMissingSourceIsNotAnError(t *testing.T) {
	locator := &fakeLocator{found: false}
	extractor := &fakeExtractor{}
	svc, _, _ := newTestService(t, locator, extractor)

	outcome, err := svc.Generate(context.Background(), library.KindAudio, 3, 9, "0:00:01.00", "0:00:02.00")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "S03E09")
	assert.Zero(t, extractor.audioCalls)
}

func TestService_GenerateExtractionFailureIsNotAnError(t *testing.T) {
	locator := &fakeLocator{path: "/audio/a.s01e01.mp3", found: true}
	extractor := &fakeExtractor{extractErr: errors.New("codec mismatch"), probeErr: errors.New("no probe")}
	svc, _, _ := newTestService(t, locator, extractor)

	outcome, err := svc.Generate(context.Background(), library.KindAudio, 1, 1, "0:00:01.00", "0:00:02.00")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "codec mismatch")
}

func TestService_GenerateRejectsBadWindows(t *testing.T) {
	locator := &fakeLocator{path: "/audio/a.mp3", found: true}
	svc, _, _ := newTestService(t, locator, &fakeExtractor{})

	_, err := svc.Generate(context.Background(), library.KindAudio, 1, 1, "bogus", "0:00:02.00")
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = svc.Generate(context.Background(), library.KindAudio, 1, 1, "0:00:05.00", "0:00:02.00")
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = svc.Generate(context.Background(), library.KindAudio, 1, 1, "0:00:02.00", "0:00:02.00")
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestService_EnforceKeepNewest(t *testing.T) {
	locator := &fakeLocator{path: "/audio/a.s01e01.mp3", found: true}
	extractor := &fakeExtractor{probeErr: errors.New("no probe")}
	svc, audioDir, _ := newTestService(t, locator, extractor, WithKeepNewest(3))

	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		path := filepath.Join(audioDir, fmt.Sprintf("s01e01_old%d.mp3", i))
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	outcome, err := svc.Generate(context.Background(), library.KindAudio, 1, 1, "0:00:01.00", "0:00:02.00")
	require.NoError(t, err)
	require.True(t, outcome.Success)

	entries, err := os.ReadDir(audioDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// The freshly generated clip must survive the pruning.
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, filepath.Base(outcome.URL))
}

func TestService_CleanupOldRemovesExpiredClips(t *testing.T) {
	locator := &fakeLocator{found: false}
	now := time.Now()
	svc, audioDir, _ := newTestService(t, locator, &fakeExtractor{},
		WithMaxAge(24*time.Hour), withClock(func() time.Time { return now }))

	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	expired := filepath.Join(audioDir, "s01e01_expired.mp3")
	fresh := filepath.Join(audioDir, "s01e01_fresh.mp3")
	require.NoError(t, os.WriteFile(expired, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o644))
	stale := now.Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(expired, stale, stale))

	svc.CleanupOld()

	_, err := os.Stat(expired)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
