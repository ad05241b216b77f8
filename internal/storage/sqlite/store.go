// Package sqlite provides a SQLite-backed media index for persisted captures.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kelter-antunes/chromara/internal/storage"
	"github.com/kelter-antunes/chromara/internal/storage/sqlite/migrations"
)

// ContentPrefix is prepended to the row id to form a content reference.
const ContentPrefix = "content://media/external/images/media/"

// ErrNotFound is returned when no media row matches.
var ErrNotFound = errors.New("media not found")

// Store indexes media rows in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite media index and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer: concurrent JPEG and RAW saves queue here instead of
	// racing for the database lock.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Index inserts or refreshes the row for e and returns its content
// reference. Rows are keyed by (relative path, display name) so a file
// overwritten within the same second keeps its reference.
func (s *Store) Index(ctx context.Context, e storage.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(e.DisplayName)
	if name == "" {
		return "", fmt.Errorf("display name is required")
	}
	if strings.TrimSpace(e.RelativePath) == "" {
		return "", fmt.Errorf("relative path is required")
	}

	var id int64
	err := s.sqlDB.QueryRowContext(ctx, `
INSERT INTO media (display_name, mime_type, relative_path, size_bytes, taken_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (relative_path, display_name) DO UPDATE SET
    mime_type = excluded.mime_type,
    size_bytes = excluded.size_bytes,
    taken_at = excluded.taken_at,
    updated_at = excluded.updated_at
RETURNING id`,
		name, e.MIMEType, e.RelativePath, e.Size, toMillis(e.TakenAt), toMillis(time.Now()),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("index media %s: %w", name, err)
	}
	return ContentPrefix + strconv.FormatInt(id, 10), nil
}

// Get returns the entry behind a content reference.
func (s *Store) Get(ctx context.Context, uri string) (storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return storage.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Entry{}, fmt.Errorf("storage is not configured")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(uri, ContentPrefix), 10, 64)
	if err != nil || !strings.HasPrefix(uri, ContentPrefix) {
		return storage.Entry{}, fmt.Errorf("invalid content reference %q", uri)
	}

	var (
		e       storage.Entry
		takenAt int64
	)
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT display_name, mime_type, relative_path, size_bytes, taken_at FROM media WHERE id = ?`, id,
	).Scan(&e.DisplayName, &e.MIMEType, &e.RelativePath, &e.Size, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entry{}, ErrNotFound
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("get media %d: %w", id, err)
	}
	e.TakenAt = fromMillis(takenAt)
	return e, nil
}

// Count returns the number of indexed rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return n, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
