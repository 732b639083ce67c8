package database

import (
	"time"
)

// Status classifies the outcome of a discovery run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusEmpty   Status = "EMPTY"
	StatusError   Status = "ERROR"
)

// DiscoveryCacheEntry is one persisted discovery result. Exactly one row
// exists per source origin; writes are upserts keyed on SourceOrigin and
// rows are only ever superseded, never deleted.
type DiscoveryCacheEntry struct {
	ID             string // sha256 of SourceOrigin
	SourceOrigin   string
	SourceURL      string
	CandidatesJSON string
	Status         Status
	LastError      string
	CheckedAt      time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Fresh reports whether the entry is still within its TTL.
func (e *DiscoveryCacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// CacheStats summarizes the cache table for the stats endpoint.
type CacheStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Empty   int `json:"empty"`
	Error   int `json:"error"`
	Expired int `json:"expired"`
}
