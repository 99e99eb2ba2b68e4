package discovery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the absolute targets of every <a href> in html, in
// document order. Unparseable hrefs are skipped.
func ExtractLinks(html, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		if link, ok := resolve(baseURL, href); ok {
			links = append(links, link)
		}
	})
	return links
}

// ResolveLink resolves href against base. Backslashes are treated as path
// separators.
func ResolveLink(base, href string) (string, bool) {
	baseURL, err := url.Parse(strings.ReplaceAll(base, `\`, "/"))
	if err != nil {
		return "", false
	}
	return resolve(baseURL, href)
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := base.Parse(strings.ReplaceAll(strings.TrimSpace(href), `\`, "/"))
	if err != nil {
		return "", false
	}
	ref.Fragment = ""
	return strings.ReplaceAll(ref.String(), `\`, "/"), true
}

// WithinDomain reports whether the host of rawURL ends with domain.
func WithinDomain(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), strings.ToLower(domain))
}
