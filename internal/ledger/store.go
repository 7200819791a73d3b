package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"snapword/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	status      TEXT NOT NULL,
	http_status INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	image_uri   TEXT NOT NULL DEFAULT '',
	cropped     INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS captures_started_at ON captures(started_at);
`

// Store records finished capture runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or replaces one capture result.
func (s *Store) Record(ctx context.Context, result domain.CaptureResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO captures
			(id, source, prompt, status, http_status, error, image_uri, cropped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		string(result.Source),
		result.Prompt,
		string(result.Status),
		result.HTTPStatus,
		result.Error,
		result.ImageURI,
		boolToInt(result.Cropped),
		result.StartedAt.UnixMilli(),
		result.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record capture %s: %w", result.ID, err)
	}
	return nil
}

// Recent returns the newest captures first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.CaptureResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, prompt, status, http_status, error, image_uri, cropped, started_at, finished_at
		FROM captures
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var results []domain.CaptureResult
	for rows.Next() {
		var (
			r                   domain.CaptureResult
			source, status      string
			cropped             int
			startedAt, finished int64
		)
		if err := rows.Scan(&r.ID, &source, &r.Prompt, &status, &r.HTTPStatus, &r.Error,
			&r.ImageURI, &cropped, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		r.Source = domain.TriggerSource(source)
		r.Status = domain.CaptureStatus(status)
		r.Cropped = cropped != 0
		r.StartedAt = time.UnixMilli(startedAt)
		r.FinishedAt = time.UnixMilli(finished)
		results = append(results, r)
	}
	return results, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
