package feed

import (
	"time"
)

// Feed is the canonical representation of a parsed RSS/Atom/RDF document.
type Feed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	SiteURL     string  `json:"site_url,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Entries     []Entry `json:"entries"`
}

// Entry is a single feed item with stable identity fields. EntryID and
// ProviderID survive re-parses of the same logical entry even when the
// source omits a guid; the downstream sync service diffs on them.
type Entry struct {
	EntryID         string     `json:"entry_id"`
	ProviderID      string     `json:"provider_id"`
	CanonicalURL    string     `json:"canonical_url"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary,omitempty"`
	Creator         string     `json:"creator,omitempty"`
	CreatorImageURL string     `json:"creator_image_url,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
}
