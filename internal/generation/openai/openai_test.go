package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tamoray/tamoray-api/internal/generation"
)

func TestRenderParsesURLs(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"url": "https://img.example.com/a.png"},
				{"url": "https://img.example.com/b.png"},
			},
		})
	}))
	defer srv.Close()

	r, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	urls, err := r.Render(context.Background(), generation.Request{Prompt: "a red fox", Style: "flat", Count: 2})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://img.example.com/a.png" {
		t.Fatalf("unexpected urls %v", urls)
	}
	if gotPath != "/images/generations" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %s", gotAuth)
	}
	if gotPayload["prompt"] != "a red fox, flat style" {
		t.Fatalf("unexpected prompt %v", gotPayload["prompt"])
	}
}

func TestRenderSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	r, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Render(context.Background(), generation.Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected upstream error")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
