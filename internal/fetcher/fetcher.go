package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

type FetchMode string

const (
	FetchModeAuto   FetchMode = "auto"
	FetchModeStatic FetchMode = "never"
	FetchModeJS     FetchMode = "always"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultMaxRedirects   = 10
	defaultAcceptLanguage = "zh-CN,zh;q=0.9"
	weixinReferer         = "https://mp.weixin.qq.com/"
	defaultMaxBodyBytes   = 16 << 20
)

// FetchResult is the raw outcome of one page fetch.
type FetchResult struct {
	Body        []byte
	ContentType string
	// URL is the final URL after redirects.
	URL    string
	UsedJS bool
}

// FetchError reports a failed page fetch: transport failure, non-2xx status
// or an unreadable body. StatusCode is zero when no response arrived.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("error fetching URL %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("error fetching URL %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CookieSource supplies cookies to attach to a request for targetURL.
type CookieSource interface {
	ExtractCookies(targetURL string) ([]*http.Cookie, error)
}

// HostMatcher reports whether a URL belongs to a host set.
type HostMatcher func(rawURL string) bool

type FetchOptions struct {
	Mode            FetchMode
	Timeout         time.Duration
	UserAgent       string
	BrowserAgent    string
	AcceptLanguage  string
	FollowRedirects bool
	MaxRedirects    int
	JSTimeout       time.Duration
	WaitForSelector string
	// MaxBodyBytes rejects larger pages instead of truncating them.
	MaxBodyBytes int64
	// NeedsReferer selects hosts that get the messaging-app Referer header.
	NeedsReferer HostMatcher
	Cookies      CookieSource
}

// ContentFetcher performs the outbound page fetch. One instance is shared
// by all requests; it holds no per-request state.
type ContentFetcher struct {
	client          *http.Client
	opts            FetchOptions
	userAgentSelect *UserAgentSelector
}

func NewContentFetcher(opts FetchOptions) *ContentFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = defaultAcceptLanguage
	}
	if opts.Mode == "" {
		opts.Mode = FetchModeStatic
	}
	if opts.JSTimeout <= 0 {
		opts.JSTimeout = opts.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	cf := &ContentFetcher{
		opts:            opts,
		userAgentSelect: NewUserAgentSelector(),
	}
	cf.client = &http.Client{
		Timeout:       opts.Timeout,
		CheckRedirect: cf.checkRedirect,
	}
	return cf
}

func (cf *ContentFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if !cf.opts.FollowRedirects {
		return http.ErrUseLastResponse
	}
	if len(via) >= cf.opts.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", cf.opts.MaxRedirects)
	}
	if !isHTTPScheme(req.URL) {
		return errors.New("redirect to unsupported scheme")
	}
	return nil
}

// Fetch retrieves url according to the configured mode. In auto mode a
// static fetch that looks like a script-rendered shell is repeated in a
// headless browser; if that fails the static result is kept.
func (cf *ContentFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	switch cf.opts.Mode {
	case FetchModeJS:
		return cf.fetchWithJS(ctx, url)
	case FetchModeAuto:
		result, err := cf.fetchStatic(ctx, url)
		if err != nil {
			return nil, err
		}
		if !cf.needsJSRendering(string(result.Body)) {
			return result, nil
		}
		if rendered, jsErr := cf.fetchWithJS(ctx, url); jsErr == nil {
			return rendered, nil
		}
		return result, nil
	default:
		return cf.fetchStatic(ctx, url)
	}
}

func (cf *ContentFetcher) fetchStatic(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if !isHTTPScheme(req.URL) {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unsupported URL scheme %q", req.URL.Scheme)}
	}

	cf.setHeaders(req, url)

	if cf.opts.Cookies != nil {
		// cookie lookup failures only cost the cookies
		if cookies, err := cf.opts.Cookies.ExtractCookies(url); err == nil {
			for _, cookie := range cookies {
				req.AddCookie(cookie)
			}
		}
	}

	resp, err := cf.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to fetch URL: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, cf.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(body)) > cf.opts.MaxBodyBytes {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", cf.opts.MaxBodyBytes)}
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		URL:         finalURL,
		UsedJS:      false,
	}, nil
}

func (cf *ContentFetcher) setHeaders(req *http.Request, url string) {
	req.Header.Set("User-Agent", cf.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", cf.opts.AcceptLanguage)
	// Don't set Accept-Encoding - let Go's http client handle compression automatically
	req.Header.Set("Connection", "keep-alive")

	if cf.opts.NeedsReferer != nil && cf.opts.NeedsReferer(url) {
		req.Header.Set("Referer", weixinReferer)
	}
}

// userAgent prefers the configured string, then a random UA of the
// configured browser family, then the fixed desktop Chrome UA.
func (cf *ContentFetcher) userAgent() string {
	if cf.opts.UserAgent != "" {
		return cf.opts.UserAgent
	}
	if cf.opts.BrowserAgent != "" {
		return cf.userAgentSelect.GetUserAgent(cf.opts.BrowserAgent)
	}
	return DefaultUserAgent
}

func (cf *ContentFetcher) fetchWithJS(ctx context.Context, url string) (*FetchResult, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(cf.userAgent()))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	chromeCtx, cancelTimeout := context.WithTimeout(chromeCtx, cf.opts.JSTimeout)
	defer cancelTimeout()

	var html, location string
	tasks := chromedp.Tasks{chromedp.Navigate(url)}
	if cf.opts.WaitForSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(cf.opts.WaitForSelector))
	} else {
		tasks = append(tasks, chromedp.WaitReady("body"))
	}
	tasks = append(tasks,
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&location),
	)

	if err := chromedp.Run(chromeCtx, tasks); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to run Chrome tasks: %w", err)}
	}

	if location == "" {
		location = url
	}
	return &FetchResult{
		Body:        []byte(html),
		ContentType: "text/html; charset=utf-8",
		URL:         location,
		UsedJS:      true,
	}, nil
}

func (cf *ContentFetcher) needsJSRendering(html string) bool {
	lowerHTML := strings.ToLower(html)

	// SPA mount points
	jsFrameworks := []string{
		"data-reactroot", "ng-app", "v-app", `id="__next"`, `id="app"></div>`, `id="root"></div>`,
	}
	for _, framework := range jsFrameworks {
		if strings.Contains(lowerHTML, framework) {
			return true
		}
	}

	if strings.Contains(lowerHTML, "loading") && len(strings.TrimSpace(html)) < 2000 {
		return true
	}

	scriptCount := strings.Count(lowerHTML, "<script")
	bodyContent := extractBodyContent(html)
	return scriptCount > 5 && len(strings.TrimSpace(bodyContent)) < 1000
}

func extractBodyContent(html string) string {
	lowerHTML := strings.ToLower(html)
	start := strings.Index(lowerHTML, "<body")
	if start == -1 {
		return html
	}

	tagEnd := strings.Index(html[start:], ">")
	if tagEnd == -1 {
		return html
	}
	start += tagEnd + 1

	end := strings.Index(lowerHTML[start:], "</body>")
	if end == -1 {
		return html[start:]
	}
	return html[start : start+end]
}

func isHTTPScheme(u *nurl.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
