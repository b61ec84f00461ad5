// Package classifier labels fetched pages so extraction can be tuned per
// page shape.
package classifier

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageType is the label attached to a document. It doubles as the source
// label of the response envelope.
type PageType string

const (
	PageArticle PageType = "article"
	PageForum   PageType = "forum"
	PageWeixin  PageType = "weixin"
	// PageJina marks hosts served by the reader service and, in responses,
	// content that came from it.
	PageJina PageType = "jina"
)

// Rules is the frozen classification configuration. Build it once at
// startup with NewRules; it is never mutated afterwards.
type Rules struct {
	forumIndicators []string
	weixinDomains   []string
	routedDomains   []string
}

// NewRules lowercases and copies its inputs.
func NewRules(forumIndicators, weixinDomains, routedDomains []string) Rules {
	return Rules{
		forumIndicators: lowerAll(forumIndicators),
		weixinDomains:   lowerAll(weixinDomains),
		routedDomains:   lowerAll(routedDomains),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Classifier is stateless apart from its Rules and safe for concurrent use.
type Classifier struct {
	rules Rules
}

func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// IsWeixin reports whether rawURL points at the messaging-app publishing host.
func (c *Classifier) IsWeixin(rawURL string) bool {
	return hostMatches(rawURL, c.rules.weixinDomains)
}

// IsRouted reports whether rawURL must skip local extraction entirely.
func (c *Classifier) IsRouted(rawURL string) bool {
	return hostMatches(rawURL, c.rules.routedDomains)
}

// Classify returns the page type of markup fetched from rawURL. URL rules
// win over markup inspection; the first forum indicator found anywhere in
// the class/id token bag makes the page a forum.
func (c *Classifier) Classify(markup, rawURL string) PageType {
	if c.IsWeixin(rawURL) {
		return PageWeixin
	}
	if c.IsRouted(rawURL) {
		return PageJina
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return PageArticle
	}

	bag := tokenBag(doc)
	for _, indicator := range c.rules.forumIndicators {
		if strings.Contains(bag, indicator) {
			return PageForum
		}
	}
	return PageArticle
}

// tokenBag joins every class token and id value in the document into one
// lowercase space-separated string.
func tokenBag(doc *goquery.Document) string {
	var tokens []string
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		tokens = append(tokens, strings.Fields(s.AttrOr("class", ""))...)
	})
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		tokens = append(tokens, s.AttrOr("id", ""))
	})
	return strings.ToLower(strings.Join(tokens, " "))
}

func hostMatches(rawURL string, domains []string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
