package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestJinaBackend_Defaults(t *testing.T) {
	b := NewJinaBackend("", "", 0)
	if b.Timeout != 15*time.Second {
		t.Errorf("expected default timeout 15s, got %v", b.Timeout)
	}
	if b.BaseURL != "https://r.jina.ai/" {
		t.Errorf("expected default BaseURL, got %q", b.BaseURL)
	}
	if b.client.Timeout != 15*time.Second {
		t.Errorf("expected client timeout 15s, got %v", b.client.Timeout)
	}
}

func TestJinaBackend_Fetch_RawBody(t *testing.T) {
	response := `Title: Example Domain

URL Source: https://example.com

Markdown Content:
# Example Domain

This domain is for use in illustrative examples in documents.`

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(response))
	}))
	defer server.Close()

	b := NewJinaBackend("", server.URL+"/", time.Second)
	got, err := b.Fetch(context.Background(), "https://example.com/page")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != response {
		t.Errorf("expected body unchanged, got %q", got)
	}
	if !strings.Contains(gotPath, "example.com/page") {
		t.Errorf("expected path containing target URL, got %q", gotPath)
	}
}

func TestJinaBackend_Fetch_WithAPIKey(t *testing.T) {
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.Write([]byte("Content here"))
	}))
	defer server.Close()

	b := NewJinaBackend("test-api-key", server.URL+"/", time.Second)
	if _, err := b.Fetch(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if capturedAuth != "Bearer test-api-key" {
		t.Errorf("expected 'Bearer test-api-key', got %q", capturedAuth)
	}
}

func TestJinaBackend_Fetch_WithoutAPIKey(t *testing.T) {
	var capturedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.Write([]byte("Content here"))
	}))
	defer server.Close()

	b := NewJinaBackend("", server.URL+"/", time.Second)
	if _, err := b.Fetch(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if capturedAuth != "" {
		t.Errorf("expected no Authorization header, got %q", capturedAuth)
	}
}

func TestJinaBackend_Fetch_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"auth", http.StatusForbidden, "jina: authentication error: nope"},
		{"unauthorized", http.StatusUnauthorized, "jina: authentication error: nope"},
		{"rate limit", http.StatusTooManyRequests, "rate limited"},
		{"server error", http.StatusInternalServerError, "jina: HTTP 500: nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("nope"))
			}))
			defer server.Close()

			b := NewJinaBackend("", server.URL+"/", time.Second)
			_, err := b.Fetch(context.Background(), "https://example.com")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in error, got: %v", tt.want, err)
			}
		})
	}
}

func TestJinaBackend_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	b := NewJinaBackend("", server.URL+"/", 50*time.Millisecond)
	_, err := b.Fetch(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.HasPrefix(err.Error(), "jina: request failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestJinaBackend_Fetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewJinaBackend("", server.URL+"/", time.Second)
	_, err := b.Fetch(ctx, "https://example.com")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
