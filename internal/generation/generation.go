// Package generation runs the thumbnail pipeline: meter tokens against the
// ledger, invoke an image renderer, and keep per-user history.
package generation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyPrompt indicates a request without a prompt.
	ErrEmptyPrompt = errors.New("prompt required")
	// ErrBatchTooLarge indicates a count above the plan's batch limit.
	ErrBatchTooLarge = errors.New("batch exceeds plan limit")
)

// Request describes one thumbnail generation call.
type Request struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// Record is a completed generation persisted to history.
type Record struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Prompt        string    `json:"prompt"`
	Style         string    `json:"style,omitempty"`
	Count         int       `json:"count"`
	TokensCharged int64     `json:"tokens_charged"`
	URLs          []string  `json:"urls"`
	CreatedAt     time.Time `json:"created_at"`
}

// Renderer produces thumbnail images for a request and returns their URLs.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]string, error)
}

// Store persists generation history.
type Store interface {
	Record(ctx context.Context, rec Record) error
	ListRecent(ctx context.Context, userID string, limit int) ([]Record, error)
	Close() error
}
