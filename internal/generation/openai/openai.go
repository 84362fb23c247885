package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tamoray/tamoray-api/internal/generation"
)

// Ensure Renderer implements generation.Renderer.
var _ generation.Renderer = (*Renderer)(nil)

// Renderer calls the OpenAI images API to produce thumbnails.
type Renderer struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
}

// Config holds configuration for the OpenAI renderer.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Model          string // optional, defaults to gpt-image-1
	Size           string // optional, defaults to 1024x1024
	RequestTimeout time.Duration
}

// New creates a Renderer instance.
func New(cfg Config) (*Renderer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-image-1"
	}
	size := strings.TrimSpace(cfg.Size)
	if size == "" {
		size = "1024x1024"
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Renderer{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		size:    size,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Render sends an image generation request upstream.
func (r *Renderer) Render(ctx context.Context, req generation.Request) ([]string, error) {
	if req.Prompt == "" {
		return nil, generation.ErrEmptyPrompt
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}

	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, req.Style)
	}

	payload := map[string]any{
		"model":  r.model,
		"prompt": prompt,
		"n":      count,
		"size":   r.size,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	var parsed imageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("openai: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("openai: upstream status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("openai: upstream status %d", resp.StatusCode)
	}
	if len(parsed.Data) == 0 {
		return nil, errors.New("openai: empty image response")
	}

	urls := make([]string, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.URL == "" {
			return nil, errors.New("openai: image entry missing url")
		}
		urls = append(urls, d.URL)
	}
	return urls, nil
}
