package feed

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedprobe/app/urlutil"
)

// ErrInvalidFeed marks documents that are not parseable as any supported
// feed dialect (RSS 2.0, Atom, RDF/RSS 1.0).
var ErrInvalidFeed = errors.New("invalid feed")

// Identity hashes are truncated to 40 hex chars.
const identityHashLen = 40

var imgSrcPattern = regexp.MustCompile(`(?is)<img[^>]+src\s*=\s*["']?([^"'\s>]+)`)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Parse converts raw feed XML into the canonical Feed structure. Dialect
// detection and dispatch are handled by gofeed's universal parser; a
// document it cannot place is reported as ErrInvalidFeed. Entries without
// a non-empty title are dropped, never errored.
func (p *Parser) Parse(data []byte, feedURL string) (*Feed, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeed, err)
	}

	result := &Feed{
		Title:       strings.TrimSpace(parsed.Title),
		Description: strings.TrimSpace(parsed.Description),
		SiteURL:     urlutil.NormalizeContentURL(parsed.Link, feedURL),
	}
	if parsed.Image != nil {
		result.ImageURL = urlutil.NormalizeContentURL(parsed.Image.URL, feedURL)
	}

	result.Entries = make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry, ok := p.normalizeEntry(item, feedURL)
		if !ok {
			slog.Debug("Entry dropped during normalization", "feed_url", feedURL, "guid", item.GUID)
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	// Newest first; entries without a date sort last.
	sort.SliceStable(result.Entries, func(i, j int) bool {
		a, b := result.Entries[i].PublishedAt, result.Entries[j].PublishedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	return result, nil
}

func (p *Parser) normalizeEntry(item *gofeed.Item, feedURL string) (Entry, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Entry{}, false
	}

	summary := strings.TrimSpace(item.Description)
	if summary == "" {
		summary = strings.TrimSpace(item.Content)
	}

	var publishedAt *time.Time
	if item.PublishedParsed != nil {
		publishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedAt = item.UpdatedParsed
	}

	rawGUID := strings.TrimSpace(item.GUID)
	link := urlutil.NormalizeContentURL(item.Link, feedURL)
	// Guids are only treated as URLs when they stand on their own; they
	// are never resolved relative to the feed URL.
	guidURL := urlutil.NormalizeContentURL(rawGUID, "")

	hash := p.identityHash(feedURL, title, summary, publishedAt)

	entry := Entry{
		Title:        title,
		Summary:      summary,
		PublishedAt:  publishedAt,
		CanonicalURL: firstNonEmpty(link, guidURL, feedURL+"#entry-"+hash),
		EntryID:      firstNonEmpty(rawGUID, link, guidURL, hash),
		ProviderID:   firstNonEmpty(link, guidURL, rawGUID, hash),
		Creator:      extractCreator(item),
		ImageURL:     p.resolveEntryImage(item, summary, feedURL),
	}
	if item.ITunesExt != nil {
		entry.CreatorImageURL = urlutil.NormalizeContentURL(item.ITunesExt.Image, feedURL)
	}

	if entry.ProviderID == "" {
		return Entry{}, false
	}

	return entry, true
}

// identityHash derives a stable fallback identity so the same logical
// entry re-parsed without a guid still maps to the same EntryID.
func (p *Parser) identityHash(feedURL, title, summary string, publishedAt *time.Time) string {
	published := ""
	if publishedAt != nil {
		published = publishedAt.UTC().Format(time.RFC3339)
	}

	content := fmt.Sprintf("%s|%s|%s|%s", feedURL, title, summary, published)
	return urlutil.HashString(content)[:identityHashLen]
}

// resolveEntryImage walks the fallback chain: media:content,
// media:thumbnail, enclosure, the item's own image, then an <img> scrape
// of the summary HTML (retried once after entity decoding).
func (p *Parser) resolveEntryImage(item *gofeed.Item, summary, feedURL string) string {
	if u := mediaExtensionURL(item, "content"); u != "" {
		return urlutil.NormalizeContentURL(u, feedURL)
	}
	if u := mediaExtensionURL(item, "thumbnail"); u != "" {
		return urlutil.NormalizeContentURL(u, feedURL)
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		if enclosure.Type == "" || strings.HasPrefix(enclosure.Type, "image/") {
			return urlutil.NormalizeContentURL(enclosure.URL, feedURL)
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return urlutil.NormalizeContentURL(item.Image.URL, feedURL)
	}

	if match := imgSrcPattern.FindStringSubmatch(summary); match != nil {
		return urlutil.NormalizeContentURL(match[1], feedURL)
	}
	if match := imgSrcPattern.FindStringSubmatch(html.UnescapeString(summary)); match != nil {
		return urlutil.NormalizeContentURL(match[1], feedURL)
	}

	return ""
}

func mediaExtensionURL(item *gofeed.Item, element string) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media[element] {
		if u := ext.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}

func extractCreator(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if name := strings.TrimSpace(author.Name); name != "" {
			return name
		}
		if email := strings.TrimSpace(author.Email); email != "" {
			return email
		}
	}
	if item.Author != nil {
		if name := strings.TrimSpace(item.Author.Name); name != "" {
			return name
		}
		return strings.TrimSpace(item.Author.Email)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
