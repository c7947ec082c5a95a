package clips

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sqin/subtitles/internal/library"
	"github.com/sqin/subtitles/internal/subtitle"
	"github.com/sqin/subtitles/pkg/file"
	"github.com/sqin/subtitles/pkg/log"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidWindow marks clip requests whose time window does not parse or
// ends before it starts.
var ErrInvalidWindow = errors.New("invalid clip window")

// Outcome is the result of one generation attempt. A missing source or a
// failed extraction is a non-success outcome, not an error: the HTTP layer
// reports it as {success:false, message}.
type Outcome struct {
	Success bool
	URL     string
	Message string
}

// Locator resolves an episode's media source on disk.
type Locator interface {
	Locate(ctx context.Context, kind library.MediaKind, season, episode int) (string, bool, error)
}

// Extractor runs the actual media tool.
type Extractor interface {
	ExtractAudioClip(ctx context.Context, src, out string, start, duration float64) error
	ExtractVideoClip(ctx context.Context, src, out string, start, duration float64) error
	ProbeDuration(ctx context.Context, src string) (float64, error)
}

type serviceOptions struct {
	padding      float64
	keepNewest   int
	maxAge       time.Duration
	audioTimeout time.Duration
	videoTimeout time.Duration
	now          func() time.Time
}

type Option func(*serviceOptions)

func WithPadding(seconds float64) Option {
	return func(o *serviceOptions) { o.padding = seconds }
}

func WithKeepNewest(n int) Option {
	return func(o *serviceOptions) { o.keepNewest = n }
}

func WithMaxAge(d time.Duration) Option {
	return func(o *serviceOptions) { o.maxAge = d }
}

func WithTimeouts(audio, video time.Duration) Option {
	return func(o *serviceOptions) {
		o.audioTimeout = audio
		o.videoTimeout = video
	}
}

func withClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// Service generates audio/video clips around a dialogue's time window and
// keeps the temp directories bounded by age and count.
type Service struct {
	locator   Locator
	extractor Extractor

	tempAudioDir string
	tempVideoDir string

	padding      float64
	keepNewest   int
	maxAge       time.Duration
	audioTimeout time.Duration
	videoTimeout time.Duration
	now          func() time.Time

	group singleflight.Group
}

func NewService(locator Locator, extractor Extractor, tempAudioDir, tempVideoDir string, opts ...Option) *Service {
	options := serviceOptions{
		padding:      2.0,
		keepNewest:   10,
		maxAge:       24 * time.Hour,
		audioTimeout: 30 * time.Second,
		videoTimeout: 60 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		locator:      locator,
		extractor:    extractor,
		tempAudioDir: tempAudioDir,
		tempVideoDir: tempVideoDir,
		padding:      options.padding,
		keepNewest:   options.keepNewest,
		maxAge:       options.maxAge,
		audioTimeout: options.audioTimeout,
		videoTimeout: options.videoTimeout,
		now:          options.now,
	}
}

// Generate extracts a clip for the dialogue window [startTS, endTS] of the
// given episode. Identical concurrent requests collapse into one extraction.
func (s *Service) Generate(ctx context.Context, kind library.MediaKind, season, episode int, startTS, endTS string) (Outcome, error) {
	startSec, err := subtitle.ParseTimestamp(startTS)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	endSec, err := subtitle.ParseTimestamp(endTS)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if endSec <= startSec {
		return Outcome{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidWindow, endTS, startTS)
	}

	s.CleanupOld()

	key := fmt.Sprintf("%s|%d|%d|%s|%s", kind, season, episode, startTS, endTS)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.generate(ctx, kind, season, episode, startSec, endSec)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func (s *Service) generate(ctx context.Context, kind library.MediaKind, season, episode int, startSec, endSec float64) (Outcome, error) {
	src, found, err := s.locator.Locate(ctx, kind, season, episode)
	if err != nil {
		return Outcome{}, fmt.Errorf("locate %s source: %w", kind, err)
	}
	if !found {
		return Outcome{
			Message: fmt.Sprintf("no %s file found for S%02dE%02d", kind, season, episode),
		}, nil
	}

	start := startSec - s.padding
	if start < 0 {
		start = 0
	}
	end := endSec + s.padding
	probeCtx, cancelProbe := context.WithTimeout(ctx, 10*time.Second)
	duration, probeErr := s.extractor.ProbeDuration(probeCtx, src)
	cancelProbe()
	if probeErr == nil && end > duration {
		end = duration
	}
	if end <= start {
		end = start + s.padding
	}

	name := fmt.Sprintf("s%02de%02d_%s.%s", season, episode,
		s.now().Format("20060102_150405"), kindExt(kind))
	outDir := s.tempDir(kind)
	if err := file.EnsureDir(outDir); err != nil {
		return Outcome{}, fmt.Errorf("create temp dir: %w", err)
	}
	out := filepath.Join(outDir, name)

	switch kind {
	case library.KindAudio:
		clipCtx, cancel := context.WithTimeout(ctx, s.audioTimeout)
		defer cancel()
		err = s.extractor.ExtractAudioClip(clipCtx, src, out, start, end-start)
	case library.KindVideo:
		clipCtx, cancel := context.WithTimeout(ctx, s.videoTimeout)
		defer cancel()
		err = s.extractor.ExtractVideoClip(clipCtx, src, out, start, end-start)
	default:
		return Outcome{}, fmt.Errorf("unknown media kind %q", kind)
	}
	if err != nil {
		log.Error("Clip extraction failed for %s S%02dE%02d: %v", kind, season, episode, err)
		return Outcome{
			Message: fmt.Sprintf("clip extraction failed: %v", err),
		}, nil
	}

	s.enforceKeepNewest(outDir)

	return Outcome{
		Success: true,
		URL:     s.publicPrefix(kind) + name,
	}, nil
}

// CleanupOld removes clips older than the configured max age from both temp
// directories. Runs before each generation and from the hourly janitor.
func (s *Service) CleanupOld() {
	if s.maxAge <= 0 {
		return
	}
	cutoff := s.now().Add(-s.maxAge)
	for _, dir := range []string{s.tempAudioDir, s.tempVideoDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		old, err := file.FindOlderThan(dir, cutoff)
		if err != nil {
			log.Warn("Clip cleanup walk failed for %s: %v", dir, err)
			continue
		}
		for _, path := range old {
			if err := os.Remove(path); err != nil {
				log.Warn("Failed to remove expired clip %s: %v", path, err)
			}
		}
	}
}

// enforceKeepNewest deletes all but the newest clips in dir, by mtime.
func (s *Service) enforceKeepNewest(dir string) {
	if s.keepNewest <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("Failed to list temp dir %s: %v", dir, err)
		return
	}

	type clipFile struct {
		path    string
		modTime time.Time
	}
	files := make([]clipFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, clipFile{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	if len(files) <= s.keepNewest {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	for _, f := range files[s.keepNewest:] {
		if err := os.Remove(f.path); err != nil {
			log.Warn("Failed to prune clip %s: %v", f.path, err)
		}
	}
}

func (s *Service) tempDir(kind library.MediaKind) string {
	if kind == library.KindVideo {
		return s.tempVideoDir
	}
	return s.tempAudioDir
}

func (s *Service) publicPrefix(kind library.MediaKind) string {
	if kind == library.KindVideo {
		return "/temp_video/"
	}
	return "/temp_audio/"
}

func kindExt(kind library.MediaKind) string {
	if kind == library.KindVideo {
		return "mp4"
	}
	return "mp3"
}
