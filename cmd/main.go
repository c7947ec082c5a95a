package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sqin/subtitles/internal/clips"
	"github.com/sqin/subtitles/internal/config"
	"github.com/sqin/subtitles/internal/httpapi"
	"github.com/sqin/subtitles/internal/jobs"
	"github.com/sqin/subtitles/internal/library"
	"github.com/sqin/subtitles/internal/media"
	"github.com/sqin/subtitles/internal/persistence"
	"github.com/sqin/subtitles/internal/search"
	"github.com/sqin/subtitles/pkg/log"
)

const version = "1.0.0"

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// bootstrapIndexer builds the search index before the server starts taking
// traffic: always when forced, otherwise only when the index is empty.
type bootstrapIndexer struct {
	indexer *search.Indexer
	force   bool
}

func (b *bootstrapIndexer) Schedule(ctx context.Context) error {
	return b.indexer.EnsureIndex(ctx, b.force)
}

func main() {
	reindexFlag := flag.Bool("reindex", false, "rebuild the search index at startup")
	versionFlag := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version)
		return
	}

	// Best-effort .env for local runs; the container sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Fatal("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.Health(context.Background()); err != nil {
		log.Fatal("Database failed integrity check: %v", err)
	}

	scanner := library.NewScanner(cfg.Media.SubtitleDir)
	locator := library.NewMediaLocator(cfg.Media.AudioDir, cfg.Media.VideoDir)

	searchSvc, err := search.NewService(store,
		search.WithMaxLimit(cfg.Search.MaxLimit),
		search.WithCache(cfg.Search.CacheSize, time.Duration(cfg.Search.CacheTTLSeconds)*time.Second),
	)
	if err != nil {
		log.Fatal("Failed to build search service: %v", err)
	}
	indexer := search.NewIndexer(scanner, store, searchSvc, runtime.NumCPU())

	ffmpeg, err := media.NewFFmpeg()
	if err != nil {
		log.Fatal("Failed to locate ffmpeg: %v", err)
	}
	clipSvc := clips.NewService(locator, ffmpeg, cfg.TempAudioDir(), cfg.TempVideoDir(),
		clips.WithPadding(cfg.Clips.PaddingSeconds),
		clips.WithKeepNewest(cfg.Clips.KeepNewest),
		clips.WithMaxAge(time.Duration(cfg.Clips.MaxAgeHours)*time.Hour),
		clips.WithTimeouts(
			time.Duration(cfg.Clips.AudioTimeoutSeconds)*time.Second,
			time.Duration(cfg.Clips.VideoTimeoutSeconds)*time.Second,
		),
	)

	queue := jobs.NewQueue(1)
	queue.Start(func(ctx context.Context, job *jobs.Job) error {
		return indexer.Reindex(ctx, func(done, total int) {
			queue.UpdateProgress(job.ID, done, total)
		})
	})
	defer queue.Stop()

	janitor := cron.New()
	if _, err := janitor.AddFunc(cfg.Clips.CleanupCron, clipSvc.CleanupOld); err != nil {
		log.Fatal("Failed to schedule clip cleanup: %v", err)
	}

	server := httpapi.NewServer(searchSvc, store, clipSvc, queue,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithTempDirs(cfg.TempAudioDir(), cfg.TempVideoDir()),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		httpapi.WithVersion(version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := &bootstrapIndexer{
		indexer: indexer,
		force:   cfg.System.ReindexOnStart || *reindexFlag,
	}

	if err := runWithComponents(ctx, cfg, boot, janitor, server); err != nil {
		log.Fatal("Server exited: %v", err)
	}
}

// runWithComponents drives startup and shutdown: build the index, start the
// janitor and the HTTP server, then block until the context is cancelled and
// drain gracefully.
func runWithComponents(ctx context.Context, cfg *config.Config, boot scheduler, janitor cronEngine, httpSrv httpServer) error {
	if err := boot.Schedule(ctx); err != nil {
		return fmt.Errorf("initial index: %w", err)
	}

	janitor.Start()
	defer janitor.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
