// Package extract turns raw article HTML into clean plain text. Extraction
// is best-effort: a site-specific rule wins over the generic fallback, and
// any failure yields an empty string rather than an error.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MinContentLength is the threshold below which a generic selector match is
// rejected in favour of the next candidate.
const MinContentLength = 100

// denySelectors are stripped from the document before extraction: structural
// chrome, embeds, and common ad/comment class names.
var denySelectors = []string{
	"script", "style", "nav", "header", "footer", "aside",
	".site-header", ".site-footer", ".nav", ".menu", ".sidebar",
	".related", ".comments", ".advertisement", ".ad", ".social-share",
	"iframe", "noscript",
}

// articleSelectors are tried in order for generic extraction.
var articleSelectors = []string{
	"article", ".article", ".post", ".entry-content",
	"main", "#main-content", ".main-content",
	".article-content", ".post-content",
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// Text extracts readable article text from rawHTML fetched at sourceURL.
// Returns "" when nothing usable can be extracted.
func Text(rawHTML, sourceURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	for _, sel := range denySelectors {
		doc.Find(sel).Remove()
	}

	var content string
	if rule, ok := siteRuleFor(hostnameOf(sourceURL)); ok {
		content = rule.extract(doc)
	}

	if content == "" {
		for _, sel := range articleSelectors {
			node := doc.Find(sel).First()
			if node.Length() == 0 {
				continue
			}
			content = node.Text()
			if len(content) > MinContentLength {
				break
			}
		}
	}

	if content == "" {
		if body := doc.Find("body").First(); body.Length() > 0 {
			content = body.Text()
		} else {
			content = doc.Text()
		}
	}

	return Normalize(content)
}

// Normalize collapses whitespace runs to single spaces, multiple blank lines
// to exactly one, and trims both ends.
func Normalize(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
