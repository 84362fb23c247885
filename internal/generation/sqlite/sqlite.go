package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tamoray/tamoray-api/internal/generation"
)

// Store implements generation.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite history store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	style TEXT,
	count INTEGER NOT NULL,
	tokens_charged INTEGER NOT NULL,
	urls TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generations_user_created ON generations(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record inserts a completed generation.
func (s *Store) Record(ctx context.Context, rec generation.Record) error {
	if rec.ID == "" || rec.UserID == "" {
		return errors.New("generation record requires id and user id")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	urls, err := json.Marshal(rec.URLs)
	if err != nil {
		return fmt.Errorf("encode urls: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO generations(id, user_id, prompt, style, count, tokens_charged, urls, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Prompt, rec.Style, rec.Count, rec.TokensCharged, string(urls), created)
	return err
}

// ListRecent returns the latest generations for a user, newest first.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]generation.Record, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, prompt, style, count, tokens_charged, urls, created_at
FROM generations
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []generation.Record
	for rows.Next() {
		var rec generation.Record
		var style sql.NullString
		var urls string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Prompt, &style, &rec.Count, &rec.TokensCharged, &urls, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Style = style.String
		if err := json.Unmarshal([]byte(urls), &rec.URLs); err != nil {
			return nil, fmt.Errorf("decode urls: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
