package discovery

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feedprobe/app/urlutil"
)

// MIME types that unambiguously mark a <link> as a feed reference.
var feedMIMETypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/rdf+xml":  true,
	"application/xml":      true,
	"text/xml":             true,
}

// ExtractFeedLinks scans HTML for feed-referencing <link rel="alternate">
// tags and returns absolute, deduplicated feed URLs resolved against
// baseURL. Malformed markup and unresolvable hrefs are tolerated, not
// errored.
func ExtractFeedLinks(htmlData []byte, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlData))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("link").Each(func(_ int, sel *goquery.Selection) {
		if !hasRelToken(sel.AttrOr("rel", ""), "alternate") {
			return
		}

		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}

		mimeType := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = strings.TrimSpace(mimeType[:i])
		}
		if !feedMIMETypes[mimeType] && !looksLikeFeedURL(href) {
			return
		}

		// Resolves relative hrefs and keeps only http(s); anything
		// malformed comes back empty and is dropped silently.
		resolved := urlutil.NormalizeContentURL(href, baseURL)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	return links
}

// hasRelToken checks a whitespace-separated rel attribute for a token,
// case-insensitively. rel="alternate stylesheet" counts, rel="stylesheet"
// does not.
func hasRelToken(rel, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(rel)) {
		if t == token {
			return true
		}
	}
	return false
}

func looksLikeFeedURL(href string) bool {
	href = strings.ToLower(href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return strings.Contains(href, "/feed") ||
		strings.Contains(href, "/rss") ||
		strings.Contains(href, "/atom") ||
		strings.HasSuffix(href, ".xml")
}
