package processor

import (
	"context"
	"fmt"
	"html"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/byteowlz/pagext/internal/classifier"
)

// Result is the loosely shaped output of an extraction engine. Only the
// "content" key is required by callers; every other key is informational.
type Result map[string]any

// Content returns the "content" field as a string, or "" when it is absent
// or not textual.
func (r Result) Content() string {
	return r.String("content")
}

// String returns the named field as a string, or "" when it is absent or
// not textual.
func (r Result) String(key string) string {
	if r == nil {
		return ""
	}
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Engine is a main-content extraction capability.
type Engine interface {
	Extract(ctx context.Context, markup, baseURL string, hint classifier.PageType) (Result, error)
}

// ContentProcessor wraps an Engine and reduces its result to the markup
// fragment. Engine errors are returned to the caller untouched.
type ContentProcessor struct {
	engine Engine
}

// NewContentProcessor returns a processor over engine, or over the
// readability engine when engine is nil.
func NewContentProcessor(engine Engine) *ContentProcessor {
	if engine == nil {
		engine = NewReadabilityEngine()
	}
	return &ContentProcessor{engine: engine}
}

// Extract returns the main-content markup fragment of markup.
func (cp *ContentProcessor) Extract(ctx context.Context, markup, baseURL string, hint classifier.PageType) (string, error) {
	result, err := cp.engine.Extract(ctx, markup, baseURL, hint)
	if err != nil {
		return "", err
	}
	return result.Content(), nil
}

// Forum threads are made of many short posts; readability's defaults drop
// most of them.
const (
	forumCharThreshold = 100
	forumTopCandidates = 10
)

// ReadabilityEngine runs go-readability with per-type preprocessing.
type ReadabilityEngine struct{}

func NewReadabilityEngine() *ReadabilityEngine {
	return &ReadabilityEngine{}
}

func (e *ReadabilityEngine) Extract(ctx context.Context, markup, baseURL string, hint classifier.PageType) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageURL, err := nurl.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	parser := readability.NewParser()
	switch hint {
	case classifier.PageWeixin:
		markup = prepareWeixin(markup)
	case classifier.PageForum:
		parser.CharThresholds = forumCharThreshold
		parser.NTopCandidates = forumTopCandidates
	}

	article, err := parser.Parse(strings.NewReader(markup), pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to process with readability: %w", err)
	}

	return Result{
		"content":   article.Content,
		"title":     article.Title,
		"text":      article.TextContent,
		"byline":    article.Byline,
		"excerpt":   article.Excerpt,
		"site_name": article.SiteName,
	}, nil
}

// prepareWeixin reduces an official-account article page to its body. The
// body container ships hidden until scripts run and its images are lazy
// loaded through data-src.
func prepareWeixin(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	body := doc.Find("#js_content").First()
	if body.Length() == 0 {
		body = doc.Find(".rich_media_content").First()
	}
	if body.Length() == 0 {
		return markup
	}

	body.RemoveAttr("style")
	body.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("data-src"); ok && src != "" {
			s.SetAttr("src", src)
		}
	})
	body.Find("script, style").Remove()

	inner, err := body.Html()
	if err != nil {
		return markup
	}

	var b strings.Builder
	b.WriteString("<html><head>")
	title := strings.TrimSpace(doc.Find("#activity-name").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title != "" {
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(title))
	}
	b.WriteString("</head><body><article>")
	if title != "" {
		fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(title))
	}
	b.WriteString(inner)
	b.WriteString("</article></body></html>")
	return b.String()
}
