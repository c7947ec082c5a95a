package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sqin/subtitles/internal/persistence"
	"github.com/sqin/subtitles/internal/subtitle"
	"golang.org/x/sync/singleflight"
)

// Searcher is the store-side query surface the service orchestrates.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]persistence.SearchHit, error)
}

type cacheEntry struct {
	response Response
	cachedAt time.Time
}

type serviceOptions struct {
	maxLimit  int
	cacheSize int
	cacheTTL  time.Duration
}

type Option func(*serviceOptions)

func WithMaxLimit(n int) Option {
	return func(o *serviceOptions) {
		o.maxLimit = n
	}
}

func WithCache(size int, ttl time.Duration) Option {
	return func(o *serviceOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// Service fronts the store with query normalization, an LRU result cache
// with per-entry TTL, and deduplication of identical in-flight queries.
type Service struct {
	store    Searcher
	maxLimit int
	cacheTTL time.Duration
	cache    *lru.Cache[string, cacheEntry]
	group    singleflight.Group
}

func NewService(store Searcher, opts ...Option) (*Service, error) {
	options := serviceOptions{
		maxLimit:  5000,
		cacheSize: 256,
		cacheTTL:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cache, err := lru.New[string, cacheEntry](options.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}

	return &Service{
		store:    store,
		maxLimit: options.maxLimit,
		cacheTTL: options.cacheTTL,
		cache:    cache,
	}, nil
}

// Search runs a full-text query. Blank queries return an empty response
// without touching the store; limit is clamped to [1, max]. Highlighting is
// applied after caching so cached entries stay marker-free.
func (s *Service) Search(ctx context.Context, query string, limit int, highlight bool) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{Query: query, Results: []Result{}}, nil
	}

	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}

	key := fmt.Sprintf("%s|%d", strings.ToLower(query), limit)
	if entry, ok := s.cache.Get(key); ok && (s.cacheTTL <= 0 || time.Since(entry.cachedAt) < s.cacheTTL) {
		return s.finish(entry.response, query, highlight), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		hits, err := s.store.Search(ctx, query, limit)
		if err != nil {
			return Response{}, err
		}
		response := Response{
			Query:   query,
			Total:   len(hits),
			Results: make([]Result, 0, len(hits)),
		}
		for _, hit := range hits {
			response.Results = append(response.Results, Result{
				Season:        hit.Season,
				Episode:       hit.Episode,
				Filename:      hit.Filename,
				DialogueIndex: hit.DialogueIndex,
				StartTime:     hit.StartTime,
				EndTime:       hit.EndTime,
				StartDisplay:  subtitle.FormatClock(hit.StartTime),
				EndDisplay:    subtitle.FormatClock(hit.EndTime),
				ChineseText:   hit.ChineseText,
				EnglishText:   hit.EnglishText,
				ContextBefore: hit.ContextBefore,
				ContextAfter:  hit.ContextAfter,
			})
		}
		s.cache.Add(key, cacheEntry{response: response, cachedAt: time.Now()})
		return response, nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("search %q: %w", query, err)
	}

	return s.finish(v.(Response), query, highlight), nil
}

func (s *Service) finish(response Response, query string, highlight bool) Response {
	response.Query = query
	if !highlight {
		return response
	}
	highlighted := make([]Result, len(response.Results))
	for i, r := range response.Results {
		highlighted[i] = highlightResult(r, query)
	}
	response.Results = highlighted
	return response
}

// Invalidate drops every cached result. Called after a reindex.
func (s *Service) Invalidate() {
	s.cache.Purge()
}
