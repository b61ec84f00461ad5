package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultJinaBaseURL = "https://r.jina.ai/"
	defaultJinaTimeout = 15 * time.Second
)

// JinaBackend fetches content through the Jina Reader service.
type JinaBackend struct {
	APIKey  string // Optional - works without auth but with rate limits
	Timeout time.Duration
	BaseURL string
	client  *http.Client
}

// NewJinaBackend creates a Jina Reader backend. Zero values select the
// public endpoint and a 15s timeout.
func NewJinaBackend(apiKey, baseURL string, timeout time.Duration) *JinaBackend {
	if timeout <= 0 {
		timeout = defaultJinaTimeout
	}
	if baseURL == "" {
		baseURL = DefaultJinaBaseURL
	}
	return &JinaBackend{
		APIKey:  apiKey,
		Timeout: timeout,
		BaseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch requests {BaseURL}{url} and returns the body unchanged.
func (j *JinaBackend) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.BaseURL+url, nil)
	if err != nil {
		return "", fmt.Errorf("jina: failed to create request: %w", err)
	}

	if j.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.APIKey)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("jina: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("jina: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", fmt.Errorf("jina: authentication error: %s", string(body))
		case http.StatusTooManyRequests:
			return "", fmt.Errorf("jina: rate limited - consider adding an API key")
		default:
			return "", fmt.Errorf("jina: HTTP %d: %s", resp.StatusCode, string(body))
		}
	}

	return string(body), nil
}
