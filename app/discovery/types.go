package discovery

import (
	"time"
)

// Strategy identifies how a candidate feed URL was found.
type Strategy string

const (
	StrategyPageLink   Strategy = "page_link"
	StrategySiteLink   Strategy = "site_link"
	StrategyCommonPath Strategy = "common_path"
)

// Seed is an unvalidated candidate produced by a probing strategy, keyed
// by normalized feed URL for the run. On collision the higher score wins
// regardless of strategy.
type Seed struct {
	FeedURL        string
	DiscoveredFrom Strategy
	Score          int
}

// Candidate is a validated feed endpoint enriched with metadata from its
// parsed document.
type Candidate struct {
	FeedURL        string   `json:"feed_url"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	SiteURL        string   `json:"site_url,omitempty"`
	DiscoveredFrom Strategy `json:"discovered_from"`
	Score          int      `json:"score"`
}

// Result is the outcome of one discovery run. "No feed found" is a normal
// Result with an empty candidate list, never an error.
type Result struct {
	SourceURL    string      `json:"source_url"`
	SourceOrigin string      `json:"source_origin"`
	CheckedAt    time.Time   `json:"checked_at"`
	Cached       bool        `json:"cached"`
	Candidates   []Candidate `json:"candidates"`
}
