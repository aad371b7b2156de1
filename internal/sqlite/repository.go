// Package sqlite persists bot state (processed mentions, firehose cursors and
// host access tokens) in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

// Repository implements domain.ProcessedRepository, domain.CursorRepository
// and domain.TokenRepository using SQLite.
type Repository struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

var (
	_ domain.ProcessedRepository = (*Repository)(nil)
	_ domain.CursorRepository    = (*Repository)(nil)
	_ domain.TokenRepository     = (*Repository)(nil)
)

// NewRepository opens or creates the database at dbPath and applies the
// schema. The caller should call Close when the repository is no longer
// needed.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repository{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) newID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_mentions (
		id           TEXT PRIMARY KEY,
		post_uri     TEXT NOT NULL UNIQUE,
		page_url     TEXT,
		processed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_mentions(processed_at);

	CREATE TABLE IF NOT EXISTS cursors (
		service      TEXT PRIMARY KEY,
		cursor_value INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// HasProcessed reports whether the mention post has been handled.
func (r *Repository) HasProcessed(ctx context.Context, uri string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_mentions WHERE post_uri = ?`, uri,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query processed mention: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the mention post as handled.
func (r *Repository) MarkProcessed(ctx context.Context, uri, pageURL string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_mentions (id, post_uri, page_url, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (post_uri) DO NOTHING`,
		r.newID(), uri, pageURL, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert processed mention: %w", err)
	}
	return nil
}

// DeleteProcessedBefore removes processed-mention records older than cutoff.
func (r *Repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_mentions WHERE processed_at < ?`,
		cutoff.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete processed mentions: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// GetCursor retrieves the saved firehose cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the firehose cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?1, ?2, ?3)
		ON CONFLICT (service) DO UPDATE SET cursor_value = ?2, updated_at = ?3`,
		service, cursor, time.Now().UTC().UnixMilli(),
	)
	return err
}

// GetToken returns the stored token, or nil if none has been saved.
func (r *Repository) GetToken(ctx context.Context, name string) (*domain.Token, error) {
	var (
		value     string
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT value, created_at FROM tokens WHERE name = ?`, name,
	).Scan(&value, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query token: %w", err)
	}
	return &domain.Token{Value: value, CreatedAt: time.UnixMilli(createdAt).UTC()}, nil
}

// SaveToken stores or replaces the token.
func (r *Repository) SaveToken(ctx context.Context, name string, token domain.Token) error {
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (name, value, created_at)
		VALUES (?1, ?2, ?3)
		ON CONFLICT (name) DO UPDATE SET value = ?2, created_at = ?3`,
		name, token.Value, createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
