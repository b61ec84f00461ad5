package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Import all browser support
)

type BrowserType string

const (
	BrowserAuto    BrowserType = "auto"
	BrowserChrome  BrowserType = "chrome"
	BrowserFirefox BrowserType = "firefox"
	BrowserSafari  BrowserType = "safari"
	BrowserZen     BrowserType = "zen"
)

// storedCookie is a cookie read from a local browser store.
type storedCookie struct {
	cookie    http.Cookie
	browser   string
	storePath string
}

type traverseFunc func(ctx context.Context) []storedCookie

// CookieExtractor reads cookies for a target URL from local browser
// profiles. Targets outside the include list, or inside the exclude list,
// get no cookies.
type CookieExtractor struct {
	browserType BrowserType
	customPaths map[string]string
	include     []string
	exclude     []string
	traverse    traverseFunc
	now         func() time.Time
}

type Options struct {
	Browser     BrowserType
	CustomPaths map[string]string
	// Domains limits injection to these hosts and their subdomains. "*" or
	// an empty list allows every host.
	Domains []string
	Exclude []string
}

func NewCookieExtractor(opts Options) *CookieExtractor {
	browserType := BrowserType(strings.ToLower(strings.TrimSpace(string(opts.Browser))))
	if browserType == "" {
		browserType = BrowserAuto
	}
	return &CookieExtractor{
		browserType: browserType,
		customPaths: opts.CustomPaths,
		include:     normalizeDomains(opts.Domains),
		exclude:     normalizeDomains(opts.Exclude),
		traverse:    kookyCookies,
		now:         time.Now,
	}
}

// kookyCookies walks every cookie store kooky can find.
func kookyCookies(ctx context.Context) []storedCookie {
	var cookies []storedCookie
	for cookie, err := range kooky.TraverseCookies(ctx) {
		if err != nil || cookie == nil {
			continue
		}
		sc := storedCookie{
			cookie: http.Cookie{
				Name:     cookie.Name,
				Value:    cookie.Value,
				Path:     cookie.Path,
				Domain:   cookie.Domain,
				Expires:  cookie.Expires,
				Secure:   cookie.Secure,
				HttpOnly: cookie.HttpOnly,
			},
		}
		if cookie.Browser != nil {
			sc.browser = cookie.Browser.Browser()
			sc.storePath = cookie.Browser.FilePath()
		}
		cookies = append(cookies, sc)
	}
	return cookies
}

func (ce *CookieExtractor) ExtractCookies(targetURL string) ([]*http.Cookie, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := strings.ToLower(parsedURL.Hostname())
	if host == "" {
		return nil, fmt.Errorf("URL has no host: %s", targetURL)
	}
	if !ce.allowed(host) {
		return nil, nil
	}

	stored := ce.traverse(context.Background())

	if ce.browserType != BrowserAuto {
		return ce.collect(stored, ce.browserType, host), nil
	}

	// first browser with cookies for the host wins
	for _, browser := range []BrowserType{BrowserChrome, BrowserFirefox, BrowserZen, BrowserSafari} {
		if cookies := ce.collect(stored, browser, host); len(cookies) > 0 {
			return cookies, nil
		}
	}
	return nil, nil
}

func (ce *CookieExtractor) collect(stored []storedCookie, browserType BrowserType, host string) []*http.Cookie {
	now := ce.now()
	var cookies []*http.Cookie
	for i := range stored {
		sc := &stored[i]
		if !ce.matchesBrowserType(sc.browser, sc.storePath, browserType) {
			continue
		}
		if !matchesDomain(sc.cookie.Domain, host) {
			continue
		}
		if !sc.cookie.Expires.IsZero() && sc.cookie.Expires.Before(now) {
			continue
		}
		c := sc.cookie
		cookies = append(cookies, &c)
	}
	return cookies
}

func (ce *CookieExtractor) allowed(host string) bool {
	for _, domain := range ce.exclude {
		if matchesDomain(domain, host) {
			return false
		}
	}
	if len(ce.include) == 0 {
		return true
	}
	for _, domain := range ce.include {
		if domain == "*" || matchesDomain(domain, host) {
			return true
		}
	}
	return false
}

func (ce *CookieExtractor) matchesBrowserType(browserName, storePath string, browserType BrowserType) bool {
	if browserType == BrowserAuto {
		return true
	}

	if custom := ce.customPaths[string(browserType)]; custom != "" {
		return storePath != "" && strings.HasPrefix(filepath.Clean(storePath), filepath.Clean(expandHome(custom)))
	}

	browserName = strings.ToLower(browserName)
	storePath = strings.ToLower(storePath)
	switch browserType {
	case BrowserChrome:
		return strings.Contains(browserName, "chrome") || strings.Contains(browserName, "chromium")
	case BrowserFirefox:
		return strings.Contains(browserName, "firefox") && !strings.Contains(storePath, "zen")
	case BrowserSafari:
		return strings.Contains(browserName, "safari")
	case BrowserZen:
		return strings.Contains(browserName, "zen") ||
			(strings.Contains(browserName, "firefox") && strings.Contains(storePath, "zen"))
	}

	return false
}

func matchesDomain(cookieDomain, targetDomain string) bool {
	if cookieDomain == "" || targetDomain == "" {
		return false
	}

	cookieDomain = strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	if cookieDomain == targetDomain {
		return true
	}
	return strings.HasSuffix(targetDomain, "."+cookieDomain)
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
