// Package orchestrator sequences fetch, decoding, classification, primary
// extraction and the reader fallback for one URL.
//
// Every failure of the primary path, and every empty primary result, is
// absorbed by exactly one fallback attempt. Hosts in the routed set skip the
// primary path entirely. A failing fallback is fatal.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/byteowlz/pagext/internal/classifier"
	"github.com/byteowlz/pagext/internal/fetcher"
	"github.com/byteowlz/pagext/internal/format"
	"github.com/byteowlz/pagext/internal/logger"
	"github.com/byteowlz/pagext/internal/metrics"
)

// Fallback reasons, as logged and counted.
const (
	ReasonRouted       = "routed"
	ReasonEmpty        = "empty"
	ReasonPrimaryError = "primary_error"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.FetchResult, error)
}

type Decoder interface {
	Resolve(raw []byte, contentType string) string
}

type PageClassifier interface {
	IsRouted(url string) bool
	Classify(markup, url string) classifier.PageType
}

type ContentExtractor interface {
	Extract(ctx context.Context, markup, baseURL string, hint classifier.PageType) (string, error)
}

type Fallback interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Renderer interface {
	FromMarkup(fragment string, f format.Format) string
	FromLightweight(text string, f format.Format) string
}

// Response is the envelope returned for every completed extraction.
type Response struct {
	URL     string              `json:"url"`
	Content string              `json:"content"`
	Format  format.Format       `json:"format"`
	Type    classifier.PageType `json:"type"`
	Success bool                `json:"success"`
}

// FallbackError reports that the reader fallback failed. There is nothing
// left to try after it.
type FallbackError struct {
	URL string
	Err error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback extraction failed for %s: %v", e.URL, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }

// Dependencies are the collaborators of an Orchestrator. Logger and Metrics
// are optional.
type Dependencies struct {
	Fetcher    Fetcher
	Decoder    Decoder
	Classifier PageClassifier
	Extractor  ContentExtractor
	Fallback   Fallback
	Renderer   Renderer
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Orchestrator is safe for concurrent use as long as its collaborators are.
type Orchestrator struct {
	fetcher    Fetcher
	decoder    Decoder
	classifier PageClassifier
	extractor  ContentExtractor
	fallback   Fallback
	renderer   Renderer
	log        logger.Logger
	metrics    *metrics.Metrics
}

func New(deps Dependencies) (*Orchestrator, error) {
	var missing []string
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if deps.Decoder == nil {
		missing = append(missing, "decoder")
	}
	if deps.Classifier == nil {
		missing = append(missing, "classifier")
	}
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Fallback == nil {
		missing = append(missing, "fallback")
	}
	if deps.Renderer == nil {
		missing = append(missing, "renderer")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("orchestrator: missing dependencies: %s", strings.Join(missing, ", "))
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Orchestrator{
		fetcher:    deps.Fetcher,
		decoder:    deps.Decoder,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		fallback:   deps.Fallback,
		renderer:   deps.Renderer,
		log:        log,
		metrics:    deps.Metrics,
	}, nil
}

// Extract turns url into content rendered as f.
//
// The returned error is a *FallbackError when the fallback failed, or the
// context error when the request was cancelled while the primary path was
// failing.
func (o *Orchestrator) Extract(ctx context.Context, url string, f format.Format) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		var pageType string
		if resp != nil {
			pageType = string(resp.Type)
		}
		o.metrics.RecordExtraction(pageType, err, time.Since(start))
	}()

	log := o.log.With(logger.String("url", url))

	if o.classifier.IsRouted(url) {
		log.Info("routing to fallback", logger.String("reason", ReasonRouted))
		o.metrics.RecordFallback(ReasonRouted)
		return o.viaFallback(ctx, url, f)
	}

	page, err := o.primary(ctx, url)
	pageType, fragment := page.pageType, page.fragment
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warn("request cancelled during primary extraction", logger.Error(err))
			return nil, ctxErr
		}
		log.Warn("primary extraction failed, using fallback",
			logger.String("reason", ReasonPrimaryError),
			logger.Error(err),
		)
		o.metrics.RecordFallback(ReasonPrimaryError)
		return o.viaFallback(ctx, url, f)

	case strings.TrimSpace(fragment) == "":
		log.Info("primary extraction empty, using fallback",
			logger.String("reason", ReasonEmpty),
			logger.String("page_type", string(pageType)),
		)
		o.metrics.RecordFallback(ReasonEmpty)
		return o.viaFallback(ctx, url, f)
	}

	log.Debug("primary extraction succeeded",
		logger.String("page_type", string(pageType)),
		logger.Bool("used_js", page.usedJS),
	)
	return &Response{
		URL:     url,
		Content: o.renderer.FromMarkup(fragment, f),
		Format:  f,
		Type:    pageType,
		Success: true,
	}, nil
}

// primaryResult is what the primary path produced for one URL.
type primaryResult struct {
	pageType classifier.PageType
	fragment string
	usedJS   bool
}

// primary runs fetch, decode, classify and extract. Panics from any
// collaborator come back as errors.
func (o *Orchestrator) primary(ctx context.Context, url string) (page primaryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = primaryResult{}
			err = fmt.Errorf("primary extraction panicked: %v", r)
		}
	}()

	result, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return primaryResult{}, err
	}
	if result == nil {
		return primaryResult{}, errors.New("fetcher returned no result")
	}
	page.usedJS = result.UsedJS

	markup := o.decoder.Resolve(result.Body, result.ContentType)

	baseURL := result.URL
	if baseURL == "" {
		baseURL = url
	}

	page.pageType = o.classifier.Classify(markup, url)

	page.fragment, err = o.extractor.Extract(ctx, markup, baseURL, page.pageType)
	if err != nil {
		return primaryResult{}, fmt.Errorf("extract %s page: %w", page.pageType, err)
	}
	return page, nil
}

func (o *Orchestrator) viaFallback(ctx context.Context, url string, f format.Format) (*Response, error) {
	text, err := o.fallback.Fetch(ctx, url)
	if err != nil {
		o.log.Error("fallback extraction failed", logger.String("url", url), logger.Error(err))
		return nil, &FallbackError{URL: url, Err: err}
	}

	return &Response{
		URL:     url,
		Content: o.renderer.FromLightweight(text, f),
		Format:  f,
		Type:    classifier.PageJina,
		Success: true,
	}, nil
}
