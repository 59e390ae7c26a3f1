package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// siteRule is a hand-tuned extraction path for a known publisher.
type siteRule struct {
	host     string // matched as substring of the hostname
	title    string
	body     string
}

// siteRules lists publishers with known layouts. First match wins.
var siteRules = []siteRule{
	{host: "ithacavoice.org", title: "h1.entry-title", body: ".entry-content"},
}

func siteRuleFor(hostname string) (siteRule, bool) {
	for _, r := range siteRules {
		if strings.Contains(hostname, r.host) {
			return r, true
		}
	}
	return siteRule{}, false
}

// extract applies the rule to the document. Returns "" if the body selector
// matches nothing so the caller falls through to generic extraction.
func (r siteRule) extract(doc *goquery.Document) string {
	body := doc.Find(r.body).First()
	if body.Length() == 0 {
		return ""
	}
	var b strings.Builder
	if title := doc.Find(r.title).First(); title.Length() > 0 {
		b.WriteString(strings.TrimSpace(title.Text()))
		b.WriteString("\n\n")
	}
	b.WriteString(body.Text())
	return b.String()
}
