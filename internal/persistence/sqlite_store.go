package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sqin/subtitles/internal/subtitle"
	_ "modernc.org/sqlite"
)

// Trigram FTS cannot match queries shorter than three runes; the LIKE leg
// alone covers those.
const minFTSQueryRunes = 3

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// ReplaceAll rebuilds the whole corpus index: delete everything, insert the
// given files and their dialogues, then rebuild the FTS table, all in one
// transaction.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, files []*subtitle.File) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reindex: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM dialogues`); err != nil {
		return fmt.Errorf("clear dialogues: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return fmt.Errorf("clear files: %w", err)
	}

	insertFile, err := tx.PrepareContext(ctx,
		`INSERT INTO files (filename, file_path, season, episode, languages) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare file insert: %w", err)
	}
	defer insertFile.Close()

	insertDialogue, err := tx.PrepareContext(ctx,
		`INSERT INTO dialogues (file_id, dialogue_index, start_time, end_time, chinese_text, english_text, raw_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare dialogue insert: %w", err)
	}
	defer insertDialogue.Close()

	for _, f := range files {
		if f == nil {
			continue
		}
		res, err2 := insertFile.ExecContext(ctx, f.Name, f.Path, f.Season, f.Episode, strings.Join(f.Languages, ","))
		if err2 != nil {
			err = fmt.Errorf("insert file %s: %w", f.Name, err2)
			return err
		}
		fileID, err2 := res.LastInsertId()
		if err2 != nil {
			err = fmt.Errorf("file id for %s: %w", f.Name, err2)
			return err
		}
		for _, d := range f.Dialogues {
			if _, err2 := insertDialogue.ExecContext(ctx,
				fileID, d.Index, d.Start, d.End, d.Chinese, d.English, d.Raw); err2 != nil {
				err = fmt.Errorf("insert dialogue %d of %s: %w", d.Index, f.Name, err2)
				return err
			}
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO dialogues_fts(dialogues_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("rebuild fts: %w", err)
	}

	return tx.Commit()
}

// Search returns dialogues matching query, ordered by season, episode and
// position. Matching is the union of an FTS5 trigram MATCH and a literal
// substring LIKE over both text columns, so short and punctuation-heavy
// queries still hit.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 1
	}

	likeTerm := "%" + escapeLike(query) + "%"

	var (
		rows *sql.Rows
		err  error
	)
	const selectHead = `
		SELECT d.file_id, d.dialogue_index, d.start_time, d.end_time, d.chinese_text, d.english_text,
		       f.filename, f.season, f.episode
		FROM dialogues d
		JOIN files f ON f.id = d.file_id
		WHERE d.id IN (`
	const selectTail = `)
		ORDER BY f.season, f.episode, d.dialogue_index
		LIMIT ?`

	if utf8.RuneCountInString(query) >= minFTSQueryRunes {
		rows, err = s.db.QueryContext(ctx,
			selectHead+`
				SELECT rowid FROM dialogues_fts WHERE dialogues_fts MATCH ?
				UNION
				SELECT id FROM dialogues
				WHERE chinese_text LIKE ? ESCAPE '\' OR english_text LIKE ? ESCAPE '\'
			`+selectTail,
			quoteFTSQuery(query), likeTerm, likeTerm, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			selectHead+`
				SELECT id FROM dialogues
				WHERE chinese_text LIKE ? ESCAPE '\' OR english_text LIKE ? ESCAPE '\'
			`+selectTail,
			likeTerm, likeTerm, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0)
	fileIDs := make([]int64, 0)
	for rows.Next() {
		var hit SearchHit
		var fileID int64
		if err := rows.Scan(
			&fileID,
			&hit.DialogueIndex,
			&hit.StartTime,
			&hit.EndTime,
			&hit.ChineseText,
			&hit.EnglishText,
			&hit.Filename,
			&hit.Season,
			&hit.Episode,
		); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
		fileIDs = append(fileIDs, fileID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}

	for i := range hits {
		before, after, err := s.neighborContext(ctx, fileIDs[i], hits[i].DialogueIndex)
		if err != nil {
			return nil, err
		}
		hits[i].ContextBefore = before
		hits[i].ContextAfter = after
	}

	return hits, nil
}

// neighborContext fetches the dialogues directly before and after the given
// position in one file, rendered as "<chinese>\n<english>".
func (s *SQLiteStore) neighborContext(ctx context.Context, fileID int64, index int) (before, after string, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dialogue_index, chinese_text, english_text
		 FROM dialogues
		 WHERE file_id = ? AND dialogue_index IN (?, ?)`,
		fileID, index-1, index+1)
	if err != nil {
		return "", "", fmt.Errorf("context query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var zh, en string
		if err := rows.Scan(&idx, &zh, &en); err != nil {
			return "", "", fmt.Errorf("scan context: %w", err)
		}
		rendered := zh + "\n" + en
		if idx < index {
			before = rendered
		} else {
			after = rendered
		}
	}
	return before, after, rows.Err()
}

// Stats reports corpus totals and per-season episode lists.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	ret := Stats{Seasons: make(map[string]SeasonStats)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&ret.TotalFiles); err != nil {
		return Stats{}, fmt.Errorf("count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dialogues`).Scan(&ret.TotalDialogues); err != nil {
		return Stats{}, fmt.Errorf("count dialogues: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT season, episode FROM files ORDER BY season, episode`)
	if err != nil {
		return Stats{}, fmt.Errorf("season query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var season, episode int
		if err := rows.Scan(&season, &episode); err != nil {
			return Stats{}, fmt.Errorf("scan season row: %w", err)
		}
		key := strconv.Itoa(season)
		entry := ret.Seasons[key]
		entry.Episodes = append(entry.Episodes, episode)
		entry.EpisodeCount = len(entry.Episodes)
		ret.Seasons[key] = entry
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("season rows: %w", err)
	}

	return ret, nil
}

// CountDialogues returns the number of indexed dialogue rows.
func (s *SQLiteStore) CountDialogues(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dialogues`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dialogues: %w", err)
	}
	return count, nil
}

// Health runs an integrity check against the database file.
func (s *SQLiteStore) Health(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so the query matches literally.
func escapeLike(q string) string {
	q = strings.ReplaceAll(q, `\`, `\\`)
	q = strings.ReplaceAll(q, `%`, `\%`)
	q = strings.ReplaceAll(q, `_`, `\_`)
	return q
}

// quoteFTSQuery turns user input into a quoted FTS5 phrase so operators like
// AND, OR and NEAR are taken literally.
func quoteFTSQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}
