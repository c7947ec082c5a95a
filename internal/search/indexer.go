package search

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sqin/subtitles/internal/library"
	"github.com/sqin/subtitles/internal/subtitle"
	"github.com/sqin/subtitles/pkg/log"
	"golang.org/x/sync/errgroup"
)

// CorpusScanner lists the subtitle files to index.
type CorpusScanner interface {
	Scan(ctx context.Context) ([]library.Entry, error)
	Invalidate()
}

// IndexStore receives the parsed corpus.
type IndexStore interface {
	ReplaceAll(ctx context.Context, files []*subtitle.File) error
	CountDialogues(ctx context.Context) (int, error)
}

// Indexer rebuilds the search index from the corpus directory: parallel
// parse, one transactional store swap, then a cache purge.
type Indexer struct {
	scanner     CorpusScanner
	store       IndexStore
	search      *Service
	parallelism int
}

func NewIndexer(scanner CorpusScanner, store IndexStore, search *Service, parallelism int) *Indexer {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Indexer{
		scanner:     scanner,
		store:       store,
		search:      search,
		parallelism: parallelism,
	}
}

// Reindex scans and parses the whole corpus and replaces the index with the
// result. Files that fail to parse are skipped with a warning rather than
// failing the rebuild. The optional progress callback receives (done, total)
// after each parsed file.
func (ix *Indexer) Reindex(ctx context.Context, progress func(done, total int)) error {
	ix.scanner.Invalidate()
	entries, err := ix.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan corpus: %w", err)
	}

	total := len(entries)
	if progress != nil {
		progress(0, total)
	}

	parsed := make([]*subtitle.File, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parallelism)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			f, err := subtitle.NewReader(entry.Path).Read()
			if err != nil {
				log.Warn("Skipping unparseable subtitle %s: %v", entry.Name, err)
			} else {
				parsed[i] = f
			}
			if progress != nil {
				progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("parse corpus: %w", err)
	}

	files := make([]*subtitle.File, 0, total)
	for _, f := range parsed {
		if f != nil {
			files = append(files, f)
		}
	}

	if err := ix.store.ReplaceAll(ctx, files); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	if ix.search != nil {
		ix.search.Invalidate()
	}

	log.Info("Reindexed %d subtitle files (%d skipped)", len(files), total-len(files))
	return nil
}

// EnsureIndex builds the index when it is empty, or unconditionally when
// force is set. Used at startup.
func (ix *Indexer) EnsureIndex(ctx context.Context, force bool) error {
	if !force {
		count, err := ix.store.CountDialogues(ctx)
		if err != nil {
			return fmt.Errorf("check index: %w", err)
		}
		if count > 0 {
			log.Debug("Index already holds %d dialogues, skipping initial build", count)
			return nil
		}
	}
	return ix.Reindex(ctx, nil)
}
