package browser

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestExtractor(opts Options, stored ...storedCookie) *CookieExtractor {
	ce := NewCookieExtractor(opts)
	ce.traverse = func(context.Context) []storedCookie { return stored }
	ce.now = func() time.Time { return fixedNow }
	return ce
}

func stored(browser, path, name, domain string) storedCookie {
	return storedCookie{
		cookie:    http.Cookie{Name: name, Value: "v-" + name, Domain: domain, Path: "/"},
		browser:   browser,
		storePath: path,
	}
}

func names(cookies []*http.Cookie) []string {
	var out []string
	for _, c := range cookies {
		out = append(out, c.Name)
	}
	return out
}

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		cookie, target string
		want           bool
	}{
		{".zhihu.com", "www.zhihu.com", true},
		{"zhihu.com", "zhihu.com", true},
		{"ZHIHU.com", "zhihu.com", true},
		{"hu.com", "zhihu.com", false},
		{"www.zhihu.com", "zhihu.com", false},
		{"", "zhihu.com", false},
		{"zhihu.com", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesDomain(tt.cookie, tt.target), "%s vs %s", tt.cookie, tt.target)
	}
}

func TestExtractCookies_FiltersByHostAndExpiry(t *testing.T) {
	expired := stored("chrome", "/chrome/Cookies", "old", ".example.com")
	expired.cookie.Expires = fixedNow.Add(-time.Hour)
	live := stored("chrome", "/chrome/Cookies", "live", ".example.com")
	live.cookie.Expires = fixedNow.Add(time.Hour)

	ce := newTestExtractor(Options{Browser: BrowserChrome},
		live,
		expired,
		stored("chrome", "/chrome/Cookies", "session", "example.com"),
		stored("chrome", "/chrome/Cookies", "other", ".other.org"),
	)

	cookies, err := ce.ExtractCookies("https://www.example.com/page")
	require.NoError(t, err)
	assert.Equal(t, []string{"live", "session"}, names(cookies))
}

func TestExtractCookies_AutoPicksFirstBrowserWithCookies(t *testing.T) {
	ce := newTestExtractor(Options{Browser: BrowserAuto},
		stored("Firefox", "/home/u/.mozilla/firefox/p/cookies.sqlite", "ff", ".example.com"),
		stored("Chromium", "/home/u/.config/chromium/Cookies", "chromium", ".example.com"),
		stored("Firefox", "/home/u/.zen/p/cookies.sqlite", "zen", ".example.com"),
	)

	cookies, err := ce.ExtractCookies("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"chromium"}, names(cookies))
}

func TestExtractCookies_ZenStoresAreNotFirefox(t *testing.T) {
	stores := []storedCookie{
		stored("firefox", "/home/u/.mozilla/firefox/p/cookies.sqlite", "ff", ".example.com"),
		stored("firefox", "/home/u/.zen/p/cookies.sqlite", "zen", ".example.com"),
	}

	ff := newTestExtractor(Options{Browser: BrowserFirefox}, stores...)
	cookies, err := ff.ExtractCookies("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"ff"}, names(cookies))

	zen := newTestExtractor(Options{Browser: BrowserZen}, stores...)
	cookies, err = zen.ExtractCookies("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"zen"}, names(cookies))
}

func TestExtractCookies_CustomPath(t *testing.T) {
	ce := newTestExtractor(Options{
		Browser:     BrowserChrome,
		CustomPaths: map[string]string{"chrome": "/opt/profiles/work"},
	},
		stored("chrome", "/home/u/.config/google-chrome/Default/Cookies", "home", ".example.com"),
		stored("chrome", "/opt/profiles/work/Default/Cookies", "work", ".example.com"),
	)

	cookies, err := ce.ExtractCookies("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, names(cookies))
}

func TestExtractCookies_IncludeExclude(t *testing.T) {
	all := []storedCookie{
		stored("chrome", "/c", "a", ".example.com"),
		stored("chrome", "/c", "b", ".zhihu.com"),
	}

	ce := newTestExtractor(Options{Browser: BrowserChrome, Domains: []string{"zhihu.com"}}, all...)
	cookies, err := ce.ExtractCookies("https://example.com")
	require.NoError(t, err)
	assert.Empty(t, cookies)

	cookies, err = ce.ExtractCookies("https://www.zhihu.com/question/1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(cookies))

	ce = newTestExtractor(Options{Browser: BrowserChrome, Domains: []string{"*"}, Exclude: []string{" Example.com "}}, all...)
	cookies, err = ce.ExtractCookies("https://example.com")
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestExtractCookies_InvalidURL(t *testing.T) {
	ce := newTestExtractor(Options{})
	_, err := ce.ExtractCookies("://bad")
	assert.Error(t, err)

	_, err = ce.ExtractCookies("/relative/only")
	assert.Error(t, err)
}
