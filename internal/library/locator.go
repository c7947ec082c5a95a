package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sqin/subtitles/pkg/file"
)

var audioExts = []string{".mp3"}
var videoExts = []string{".mkv", ".mp4"}

type located struct {
	path     string
	found    bool
	resolved time.Time
}

// MediaLocator resolves the media source file for an episode: an mp3 under
// the audio root, or an mkv/mp4 under the video root. Filenames are matched
// on an S##E## marker (video releases also use the S##.## form). Results,
// including misses, are cached for a short TTL.
type MediaLocator struct {
	audioDir string
	videoDir string

	mu       sync.Mutex
	cacheTTL time.Duration
	cache    map[string]located
}

func NewMediaLocator(audioDir, videoDir string, opts ...Option) *MediaLocator {
	options := scannerOptions{
		cacheTTL: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &MediaLocator{
		audioDir: audioDir,
		videoDir: videoDir,
		cacheTTL: options.cacheTTL,
		cache:    make(map[string]located),
	}
}

// Locate returns the media path for (kind, season, episode). A missing file
// is a normal miss reported through found, not an error.
func (l *MediaLocator) Locate(ctx context.Context, kind MediaKind, season, episode int) (path string, found bool, err error) {
	key := fmt.Sprintf("%s|%d|%d", kind, season, episode)

	l.mu.Lock()
	if hit, ok := l.cache[key]; ok && (l.cacheTTL <= 0 || time.Since(hit.resolved) < l.cacheTTL) {
		l.mu.Unlock()
		return hit.path, hit.found, nil
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
	}

	switch kind {
	case KindAudio:
		path, found, err = locateIn(l.audioDir, audioExts, audioMarkers(season, episode))
	case KindVideo:
		path, found, err = locateIn(l.videoDir, videoExts, videoMarkers(season, episode))
	default:
		return "", false, fmt.Errorf("unknown media kind %q", kind)
	}
	if err != nil {
		return "", false, err
	}

	l.mu.Lock()
	l.cache[key] = located{path: path, found: found, resolved: time.Now()}
	l.mu.Unlock()

	return path, found, nil
}

func (l *MediaLocator) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]located)
	l.mu.Unlock()
}

func audioMarkers(season, episode int) []string {
	return []string{fmt.Sprintf("s%02de%02d", season, episode)}
}

func videoMarkers(season, episode int) []string {
	return []string{
		fmt.Sprintf("s%02de%02d", season, episode),
		fmt.Sprintf("s%02d.%02d", season, episode),
	}
}

func locateIn(dir string, exts []string, markers []string) (string, bool, error) {
	if dir == "" {
		return "", false, nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	paths, err := file.FindByExtensions(dir, exts)
	if err != nil {
		return "", false, err
	}
	for _, path := range paths {
		name := strings.ToLower(filepath.Base(path))
		for _, marker := range markers {
			if strings.Contains(name, marker) {
				return path, true, nil
			}
		}
	}
	return "", false, nil
}
