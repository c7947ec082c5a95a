package library

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sqin/subtitles/internal/subtitle"
	"github.com/sqin/subtitles/pkg/file"
	"github.com/sqin/subtitles/pkg/log"
)

type scannerOptions struct {
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	entries []Entry
}

// Scanner discovers .ass subtitle files under the corpus directory. Files
// whose names carry no S##E## marker are skipped. Scans are cached for a
// short TTL so repeated calls do not hit the filesystem.
type Scanner struct {
	dir string

	mu            sync.RWMutex
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(dir string, opts ...Option) *Scanner {
	options := scannerOptions{
		cacheTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		dir:      dir,
		cacheTTL: options.cacheTTL,
	}
}

// Dir returns the corpus directory the scanner walks.
func (s *Scanner) Dir() string {
	return s.dir
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

// Scan returns the corpus entries sorted by season and episode.
func (s *Scanner) Scan(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := append([]Entry(nil), s.cache.entries...)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}

	paths, err := file.FindByExtensions(s.dir, []string{".ass"})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		name := filepath.Base(path)
		season, episode, ok := subtitle.ParseSeasonEpisode(name)
		if !ok {
			log.Warn("Skipping subtitle without S##E## marker: %s", name)
			continue
		}
		entries = append(entries, Entry{
			Path:    path,
			Name:    name,
			Season:  season,
			Episode: episode,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Season != entries[j].Season {
			return entries[i].Season < entries[j].Season
		}
		return entries[i].Episode < entries[j].Episode
	})

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			entries: append([]Entry(nil), entries...),
		}
	}
	s.mu.Unlock()

	return entries, nil
}
