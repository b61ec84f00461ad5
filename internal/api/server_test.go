package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/pagext/internal/classifier"
	"github.com/byteowlz/pagext/internal/fetcher"
	"github.com/byteowlz/pagext/internal/format"
	"github.com/byteowlz/pagext/internal/metrics"
	"github.com/byteowlz/pagext/internal/orchestrator"
)

type stubExtractor struct {
	resp      *orchestrator.Response
	err       error
	panics    bool
	gotURL    string
	gotFormat format.Format
	calls     int
}

func (s *stubExtractor) Extract(ctx context.Context, rawURL string, f format.Format) (*orchestrator.Response, error) {
	s.calls++
	s.gotURL = rawURL
	s.gotFormat = f
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &orchestrator.Response{URL: rawURL, Content: "hello", Format: f, Type: classifier.PageArticle, Success: true}, nil
}

func newTestServer(ext *stubExtractor) *Server {
	return NewServer(Config{}, ext, metrics.New(prometheus.NewRegistry()), nil)
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func extractPath(rawURL string, extra url.Values) string {
	q := url.Values{}
	if rawURL != "" {
		q.Set("url", rawURL)
	}
	for k, v := range extra {
		q[k] = v
	}
	return "/api/extract?" + q.Encode()
}

func TestExtract_Success(t *testing.T) {
	ext := &stubExtractor{}
	srv := newTestServer(ext)

	rec := get(t, srv, extractPath("https://mp.weixin.qq.com/s/abc", url.Values{"output_format": {"markdown"}}))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{
		"url":     "https://mp.weixin.qq.com/s/abc",
		"content": "hello",
		"format":  "markdown",
		"type":    "article",
		"success": true,
	}, body)
	assert.Equal(t, format.Markdown, ext.gotFormat)
}

func TestExtract_DefaultFormatIsText(t *testing.T) {
	ext := &stubExtractor{}
	srv := newTestServer(ext)

	rec := get(t, srv, extractPath("https://example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, format.Text, ext.gotFormat)
}

func TestExtract_ConfiguredDefaultFormat(t *testing.T) {
	ext := &stubExtractor{}
	srv := NewServer(Config{DefaultFormat: format.HTML}, ext, nil, nil)

	rec := get(t, srv, extractPath("https://example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, format.HTML, ext.gotFormat)
}

func TestExtract_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		detail string
	}{
		{"missing url", extractPath("", nil), "url query parameter is required"},
		{"relative url", extractPath("/just/a/path", nil), "url must be an absolute http or https URL"},
		{"bad scheme", extractPath("ftp://example.com/f", nil), "url must be an absolute http or https URL"},
		{"no host", extractPath("https://", nil), "url must include a host"},
		{"bad format", extractPath("https://example.com", url.Values{"output_format": {"pdf"}}), "output_format must be one of html, markdown, text"},
		{"empty format", extractPath("https://example.com", url.Values{"output_format": {""}}), "output_format must be one of html, markdown, text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &stubExtractor{}
			rec := get(t, newTestServer(ext), tt.target)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, rec.Body.String())
			assert.Zero(t, ext.calls)
		})
	}
}

func TestExtract_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			"fallback failure",
			&orchestrator.FallbackError{URL: "https://example.com", Err: errors.New("jina: request failed: timeout")},
			http.StatusInternalServerError,
		},
		{
			"escaped fetch error",
			&fetcher.FetchError{URL: "https://example.com", StatusCode: 404, Err: errors.New("not found")},
			http.StatusBadRequest,
		},
		{"cancelled", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestServer(&stubExtractor{err: tt.err}), extractPath("https://example.com", nil))

			require.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Detail)
		})
	}
}

func TestExtract_PanicIsRecovered(t *testing.T) {
	rec := get(t, newTestServer(&stubExtractor{panics: true}), extractPath("https://example.com", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(&stubExtractor{}), "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.RecordFallback("routed")
	srv := NewServer(Config{}, &stubExtractor{}, m, nil)

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pagext_fallbacks_total{reason="routed"} 1`)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(&stubExtractor{})

	rec := get(t, srv, "/health")
	generated := rec.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set("X-Request-ID", "upstream-abc")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "upstream-abc", rec.Header().Get("X-Request-ID"))
}

func TestServer_RunStopsOnContextCancel(t *testing.T) {
	srv := NewServer(Config{Port: 0}, &stubExtractor{}, nil, nil)
	srv.server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
