package loopback

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tamoray/tamoray-api/internal/generation"
)

// Ensure Renderer implements generation.Renderer.
var _ generation.Renderer = (*Renderer)(nil)

// Renderer fabricates deterministic placeholder thumbnails so the pipeline
// can run without an upstream image provider.
type Renderer struct {
	baseURL string
}

// New creates a Renderer serving URLs under baseURL.
func New(baseURL string) *Renderer {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://media.tamoray.local"
	}
	return &Renderer{baseURL: baseURL}
}

// Render returns one placeholder URL per requested thumbnail.
func (r *Renderer) Render(ctx context.Context, req generation.Request) ([]string, error) {
	if req.Prompt == "" {
		return nil, generation.ErrEmptyPrompt
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	batch := uuid.NewString()
	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		urls = append(urls, fmt.Sprintf("%s/thumbnails/%s-%d.png", r.baseURL, batch, i+1))
	}
	return urls, nil
}
