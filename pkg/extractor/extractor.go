// Package extractor builds the complete extraction pipeline from a
// configuration.
package extractor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/byteowlz/pagext/internal/browser"
	"github.com/byteowlz/pagext/internal/charset"
	"github.com/byteowlz/pagext/internal/classifier"
	"github.com/byteowlz/pagext/internal/config"
	fallback "github.com/byteowlz/pagext/internal/extractor"
	"github.com/byteowlz/pagext/internal/fetcher"
	"github.com/byteowlz/pagext/internal/format"
	"github.com/byteowlz/pagext/internal/logger"
	"github.com/byteowlz/pagext/internal/metrics"
	"github.com/byteowlz/pagext/internal/orchestrator"
	"github.com/byteowlz/pagext/internal/processor"
)

type Options struct {
	Logger logger.Logger
	// Registry receives the pipeline metrics. Nil selects a private
	// registry with the Go runtime collectors.
	Registry *prometheus.Registry
}

// Extractor is the assembled pipeline. It is safe for concurrent use.
type Extractor struct {
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
}

func New(cfg *config.Config, opts Options) (*Extractor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	m := metrics.New(opts.Registry)

	cls := classifier.New(classifier.NewRules(
		cfg.Classifier.ForumIndicators,
		cfg.Classifier.WeixinDomains,
		cfg.Classifier.RoutedDomains,
	))

	fetchOpts := fetcher.FetchOptions{
		Mode:            fetcher.FetchMode(cfg.Extraction.JavaScript),
		Timeout:         cfg.Network.Timeout,
		UserAgent:       cfg.Network.UserAgent,
		BrowserAgent:    cfg.Network.BrowserAgent,
		AcceptLanguage:  cfg.Network.AcceptLanguage,
		FollowRedirects: cfg.Network.FollowRedirects,
		MaxRedirects:    cfg.Network.MaxRedirects,
		JSTimeout:       cfg.Extraction.JSTimeout,
		WaitForSelector: cfg.Extraction.WaitForSelector,
		NeedsReferer:    cls.IsWeixin,
	}
	if cfg.Browser.Cookies.Enabled {
		fetchOpts.Cookies = browser.NewCookieExtractor(browser.Options{
			Browser:     browser.BrowserType(cfg.Browser.Default),
			CustomPaths: cfg.Browser.Paths,
			Domains:     cfg.Browser.Cookies.Domains,
			Exclude:     cfg.Browser.Cookies.Exclude,
		})
	}

	var reader fallback.Backend = fallback.NewJinaBackend(cfg.Fallback.APIKey, cfg.Fallback.BaseURL, cfg.Fallback.Timeout)

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Fetcher:    fetcher.NewContentFetcher(fetchOpts),
		Decoder:    charset.NewResolver(nil),
		Classifier: cls,
		Extractor:  processor.NewContentProcessor(nil),
		Fallback:   reader,
		Renderer:   format.NewConverter(),
		Logger:     log,
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	log.Debug("extraction pipeline ready",
		logger.String("javascript", cfg.Extraction.JavaScript),
		logger.String("fallback", cfg.Fallback.BaseURL),
		logger.Bool("cookies", cfg.Browser.Cookies.Enabled),
	)

	return &Extractor{orch: orch, metrics: m}, nil
}

func (e *Extractor) Extract(ctx context.Context, url string, f format.Format) (*orchestrator.Response, error) {
	return e.orch.Extract(ctx, url, f)
}

// Metrics returns the collectors the pipeline records into.
func (e *Extractor) Metrics() *metrics.Metrics {
	return e.metrics
}
