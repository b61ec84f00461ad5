// Package format renders extracted content into the requested output
// format. No function in this package returns an error: on any failure the
// input is passed through.
package format

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Format is the requested output representation.
type Format string

const (
	HTML     Format = "html"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// Parse maps a query value to a Format.
func Parse(s string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case HTML, Markdown, Text:
		return f, true
	}
	return "", false
}

// ImagePlaceholder replaces images when markdown is flattened to text.
const ImagePlaceholder = "[图片]"

// Converter holds the configured markdown renderer. It is safe for
// concurrent use.
type Converter struct {
	markdown *md.Converter
}

func NewConverter() *Converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "*",
		CodeBlockStyle:   "fenced",
		EscapeMode:       "disabled",
	})
	conv.AddRules(autolinkRule())
	return &Converter{markdown: conv}
}

// autolinkRule renders <a href="x">x</a> as <x>. Returning nil hands every
// other link to the default rule.
func autolinkRule() md.Rule {
	return md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, selec *goquery.Selection, _ *md.Options) *string {
			href, ok := selec.Attr("href")
			if !ok {
				return nil
			}
			href = strings.TrimSpace(href)
			text := strings.TrimSpace(content)
			if href == "" || text != href {
				return nil
			}
			if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") && !strings.HasPrefix(href, "mailto:") {
				return nil
			}
			return md.String("<" + href + ">")
		},
	}
}

// FromMarkup renders an HTML fragment.
func (c *Converter) FromMarkup(fragment string, f Format) string {
	switch f {
	case HTML:
		return fragment
	case Markdown:
		out, err := c.markdown.ConvertString(fragment)
		if err != nil {
			return fragment
		}
		return out
	case Text:
		return markupText(fragment)
	default:
		return fragment
	}
}

// FromLightweight renders markdown. HTML output is a passthrough: no
// markdown renderer is wired for it.
func (c *Converter) FromLightweight(text string, f Format) string {
	switch f {
	case Markdown, HTML:
		return text
	case Text:
		return StripMarkdown(text)
	default:
		return text
	}
}

var (
	imagePattern    = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	linkPattern     = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	markCharPattern = regexp.MustCompile("[#*`]")
)

// StripMarkdown flattens markdown to plain text: images become
// ImagePlaceholder, links keep their text, and heading, emphasis and code
// characters are dropped. The result is a fixed point, so stripping it again
// changes nothing. Nested links such as [[a](b)](c) take one pass per
// level. Every pass that changes the text removes a "(" or shrinks it
// without adding one, so the loop terminates.
func StripMarkdown(text string) string {
	for {
		next := stripOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func stripOnce(text string) string {
	text = imagePattern.ReplaceAllString(text, ImagePlaceholder)
	text = linkPattern.ReplaceAllString(text, "$1")
	text = markCharPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// markupText returns the visible text nodes of fragment, each trimmed,
// one per line.
func markupText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "template":
				return
			}
		case html.CommentNode, html.DoctypeNode:
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}
