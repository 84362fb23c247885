package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tamoray/tamoray-api/internal/generation"
)

// Store implements generation.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed history store using the provided DSN and
// connection pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
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
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	style TEXT,
	count INTEGER NOT NULL,
	tokens_charged BIGINT NOT NULL,
	urls TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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

// Ping verifies the database is reachable.
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO generations(id, user_id, prompt, style, count, tokens_charged, urls, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.Prompt, rec.Style, rec.Count, rec.TokensCharged, pq.Array(rec.URLs), created)
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
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []generation.Record
	for rows.Next() {
		var rec generation.Record
		var style sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Prompt, &style, &rec.Count, &rec.TokensCharged, pq.Array(&rec.URLs), &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Style = style.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
