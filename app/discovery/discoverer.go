package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"feedprobe/app/database"
	"feedprobe/app/feed"
	"feedprobe/app/urlutil"
)

// Discoverer runs the full discovery pipeline for a source URL: probing
// strategies, candidate ranking, sequential validation, and the cache
// read/write around it all.
type Discoverer struct {
	repo   database.DiscoveryRepository
	parser *feed.Parser
	client *Client
	opts   Options
}

func NewDiscoverer(repo database.DiscoveryRepository, parser *feed.Parser, client *Client, opts Options) *Discoverer {
	return &Discoverer{
		repo:   repo,
		parser: parser,
		client: client,
		opts:   opts,
	}
}

// Discover resolves feed candidates for rawURL. Only input errors
// (ErrInvalidURL, ErrUnsafeHost) are returned as errors; every downstream
// failure degrades to a Result, possibly with no candidates. With a fresh
// cache entry and refresh unset, the cached result is returned verbatim
// and no network calls are made.
func (d *Discoverer) Discover(ctx context.Context, rawURL string, refresh bool) (result *Result, err error) {
	sourceURL, err := d.normalizeSource(rawURL)
	if err != nil {
		return nil, err
	}

	origin, err := urlutil.Origin(sourceURL)
	if err != nil {
		return nil, err
	}

	if !refresh {
		if cached := d.lookupCache(origin); cached != nil {
			return cached, nil
		}
	}

	// Anything unexpected escaping the pipeline is recorded as a
	// short-lived ERROR entry instead of reaching the caller.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Discovery pipeline failure", "url", sourceURL, "panic", r)
			result = d.persist(origin, sourceURL, nil, fmt.Sprintf("unexpected failure: %v", r), database.StatusError)
			err = nil
		}
	}()

	seeds, lastError := d.probe(ctx, sourceURL, origin)
	ranked := rankSeeds(seeds)
	if len(ranked) > d.opts.ValidationLimit {
		ranked = ranked[:d.opts.ValidationLimit]
	}

	candidates := d.validate(ctx, ranked)

	status := database.StatusEmpty
	if len(candidates) > 0 {
		status = database.StatusSuccess
	}

	return d.persist(origin, sourceURL, candidates, lastError, status), nil
}

func (d *Discoverer) normalizeSource(rawURL string) (string, error) {
	if d.opts.AllowPrivateHosts {
		return urlutil.Canonicalize(rawURL)
	}
	return urlutil.NormalizeFeedURL(rawURL)
}

// lookupCache returns a verbatim cached result for the origin, or nil on
// miss, staleness, or undecodable candidate JSON.
func (d *Discoverer) lookupCache(origin string) *Result {
	entry, err := d.repo.GetByOrigin(origin)
	if err != nil {
		slog.Error("Cache lookup failed", "origin", origin, "error", err)
		return nil
	}
	if entry == nil || !entry.Fresh(time.Now().UTC()) {
		return nil
	}

	var candidates []Candidate
	if err := json.Unmarshal([]byte(entry.CandidatesJSON), &candidates); err != nil {
		slog.Warn("Dropping malformed cached candidates", "origin", origin, "error", err)
		return nil
	}

	slog.Debug("Discovery cache hit", "origin", origin, "status", entry.Status, "candidates", len(candidates))

	return &Result{
		SourceURL:    entry.SourceURL,
		SourceOrigin: entry.SourceOrigin,
		CheckedAt:    entry.CheckedAt,
		Cached:       true,
		Candidates:   candidates,
	}
}

// probe runs the three independent strategies into one seed map. Network
// failures are swallowed: the first one is kept as the run's lastError and
// the remaining strategies still run.
func (d *Discoverer) probe(ctx context.Context, sourceURL, origin string) (map[string]Seed, string) {
	seeds := make(map[string]Seed)
	lastError := ""
	record := func(err error) {
		if lastError == "" && err != nil {
			lastError = err.Error()
		}
	}

	if data, err := d.client.FetchHTML(ctx, sourceURL); err != nil {
		slog.Debug("Source page fetch failed", "url", sourceURL, "error", err)
		record(err)
	} else {
		for _, link := range ExtractFeedLinks(data, sourceURL) {
			addSeed(seeds, link, StrategyPageLink, d.opts.PageLinkScore)
		}
	}

	if sourceURL != origin && sourceURL != origin+"/" {
		if data, err := d.client.FetchHTML(ctx, origin); err != nil {
			slog.Debug("Homepage fetch failed", "url", origin, "error", err)
			record(err)
		} else {
			for _, link := range ExtractFeedLinks(data, origin) {
				addSeed(seeds, link, StrategySiteLink, d.opts.SiteLinkScore)
			}
		}
	}

	// Well-known paths need no fetch at seed time; scores descend by
	// list position so conventional paths win ties.
	for i, path := range d.opts.CommonPaths {
		score := d.opts.CommonPathScore - i
		if score < 1 {
			score = 1
		}
		addSeed(seeds, origin+path, StrategyCommonPath, score)
	}

	return seeds, lastError
}

// addSeed merges a candidate into the run's seed map, keyed by normalized
// URL; the higher score wins regardless of strategy.
func addSeed(seeds map[string]Seed, rawURL string, from Strategy, score int) {
	normalized, err := urlutil.Canonicalize(rawURL)
	if err != nil {
		return
	}

	if existing, ok := seeds[normalized]; ok && existing.Score >= score {
		return
	}
	seeds[normalized] = Seed{FeedURL: normalized, DiscoveredFrom: from, Score: score}
}

func rankSeeds(seeds map[string]Seed) []Seed {
	ranked := make([]Seed, 0, len(seeds))
	for _, seed := range seeds {
		ranked = append(ranked, seed)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].FeedURL < ranked[j].FeedURL
	})

	return ranked
}

// validate fetches and parses candidates one at a time in rank order,
// stopping once the result cap is reached. A failed candidate is rejected
// without retry; the rest of the list still gets its chance. Sequential on
// purpose: it throttles load on the target origin.
func (d *Discoverer) validate(ctx context.Context, ranked []Seed) []Candidate {
	candidates := make([]Candidate, 0, d.opts.ResultLimit)

	for _, seed := range ranked {
		if len(candidates) >= d.opts.ResultLimit {
			break
		}

		data, err := d.client.FetchFeed(ctx, seed.FeedURL)
		if err != nil {
			slog.Debug("Candidate fetch failed", "url", seed.FeedURL, "error", err)
			continue
		}

		parsed, err := d.parser.Parse(data, seed.FeedURL)
		if err != nil {
			slog.Debug("Candidate rejected as non-feed", "url", seed.FeedURL, "error", err)
			continue
		}

		candidates = append(candidates, Candidate{
			FeedURL:        seed.FeedURL,
			Title:          parsed.Title,
			Description:    parsed.Description,
			SiteURL:        parsed.SiteURL,
			DiscoveredFrom: seed.DiscoveredFrom,
			Score:          seed.Score,
		})
	}

	return candidates
}

// persist writes the run outcome to the cache and builds the Result. A
// failed cache write is logged, not surfaced: the computed result is still
// valid for the caller.
func (d *Discoverer) persist(origin, sourceURL string, candidates []Candidate, lastError string, status database.Status) *Result {
	if candidates == nil {
		candidates = []Candidate{}
	}
	now := time.Now().UTC()

	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		slog.Error("Failed to encode candidates", "origin", origin, "error", err)
		candidatesJSON = []byte("[]")
	}

	entry := database.DiscoveryCacheEntry{
		ID:             urlutil.HashString(origin),
		SourceOrigin:   origin,
		SourceURL:      sourceURL,
		CandidatesJSON: string(candidatesJSON),
		Status:         status,
		LastError:      lastError,
		CheckedAt:      now,
		ExpiresAt:      now.Add(d.opts.TTLFor(status)),
	}
	if err := d.repo.Upsert(entry); err != nil {
		slog.Error("Failed to write discovery cache", "origin", origin, "error", err)
	}

	slog.Debug("Discovery run completed",
		"origin", origin,
		"status", status,
		"candidates", len(candidates),
		"last_error", lastError)

	return &Result{
		SourceURL:    sourceURL,
		SourceOrigin: origin,
		CheckedAt:    now,
		Cached:       false,
		Candidates:   candidates,
	}
}
