package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"feedprobe/app/database"
	"feedprobe/app/feed"
	"feedprobe/app/urlutil"
)

type fakeRepo struct {
	mu      sync.Mutex
	entries map[string]database.DiscoveryCacheEntry
	upserts int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[string]database.DiscoveryCacheEntry)}
}

func (r *fakeRepo) GetByOrigin(origin string) (*database.DiscoveryCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[origin]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (r *fakeRepo) Upsert(entry database.DiscoveryCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.SourceOrigin] = entry
	r.upserts++
	return nil
}

func (r *fakeRepo) List(limit int) ([]database.DiscoveryCacheEntry, error) {
	return nil, nil
}

func (r *fakeRepo) Stats() (*database.CacheStats, error) {
	return &database.CacheStats{}, nil
}

func (r *fakeRepo) Count() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}

type countingMux struct {
	mu       sync.Mutex
	requests map[string]int
	handler  http.Handler
}

func newCountingMux(handler http.Handler) *countingMux {
	return &countingMux{requests: make(map[string]int), handler: handler}
}

func (m *countingMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests[r.URL.Path]++
	m.mu.Unlock()
	m.handler.ServeHTTP(w, r)
}

func (m *countingMux) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, count := range m.requests {
		total += count
	}
	return total
}

func (m *countingMux) count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

func testDiscoverer(repo database.DiscoveryRepository, opts Options) *Discoverer {
	opts.AllowPrivateHosts = true
	client := NewClient("feedprobe-test/1.0", opts)
	return NewDiscoverer(repo, feed.NewParser(), client, opts)
}

const testFeedXML = `<rss version="2.0"><channel>
<title>Example Blog</title>
<link>https://blog.example.com</link>
<description>A test blog</description>
<item><title>Post One</title><link>https://blog.example.com/post/1</link></item>
</channel></rss>`

func TestDiscoverPageLinkScenario(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/post/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head>
<link rel="alternate" type="application/rss+xml" href="/feed.xml">
</head><body>post</body></html>`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed.xml" {
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write([]byte(testFeedXML))
			return
		}
		if r.URL.Path == "/" {
			w.Write([]byte(`<html><head><title>home</title></head></html>`))
			return
		}
		http.NotFound(w, r)
	})

	counter := newCountingMux(mux)
	server := httptest.NewServer(counter)
	defer server.Close()

	repo := newFakeRepo()
	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL+"/post/1", false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Cached {
		t.Error("Expected uncached result")
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d: %+v", len(result.Candidates), result.Candidates)
	}

	candidate := result.Candidates[0]
	if candidate.FeedURL != server.URL+"/feed.xml" {
		t.Errorf("Expected feed URL %s/feed.xml, got: %s", server.URL, candidate.FeedURL)
	}
	if candidate.Score != 100 {
		t.Errorf("Expected score 100, got: %d", candidate.Score)
	}
	if candidate.DiscoveredFrom != StrategyPageLink {
		t.Errorf("Expected page_link strategy, got: %s", candidate.DiscoveredFrom)
	}
	if candidate.Title != "Example Blog" {
		t.Errorf("Expected title 'Example Blog', got: %s", candidate.Title)
	}

	origin, _ := urlutil.Origin(server.URL)
	entry, _ := repo.GetByOrigin(origin)
	if entry == nil {
		t.Fatal("Expected cache entry to be written")
	}
	if entry.Status != database.StatusSuccess {
		t.Errorf("Expected SUCCESS status, got: %s", entry.Status)
	}
	if got := entry.ExpiresAt.Sub(entry.CheckedAt); got != 7*24*time.Hour {
		t.Errorf("Expected 7 day TTL, got: %v", got)
	}
	if !strings.Contains(entry.CandidatesJSON, "/feed.xml") {
		t.Errorf("Expected candidates JSON to contain the feed URL, got: %s", entry.CandidatesJSON)
	}
}

func TestDiscoverCacheHitMakesNoNetworkCalls(t *testing.T) {
	counter := newCountingMux(http.NotFoundHandler())
	server := httptest.NewServer(counter)
	defer server.Close()

	origin, _ := urlutil.Origin(server.URL)

	repo := newFakeRepo()
	now := time.Now().UTC()
	repo.entries[origin] = database.DiscoveryCacheEntry{
		ID:             urlutil.HashString(origin),
		SourceOrigin:   origin,
		SourceURL:      server.URL + "/post/1",
		CandidatesJSON: `[{"feed_url":"` + server.URL + `/feed.xml","discovered_from":"page_link","score":100}]`,
		Status:         database.StatusSuccess,
		CheckedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}

	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL+"/post/1", false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !result.Cached {
		t.Error("Expected cached result")
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Score != 100 {
		t.Errorf("Expected cached candidate returned verbatim, got: %+v", result.Candidates)
	}
	if counter.total() != 0 {
		t.Errorf("Expected zero network calls on cache hit, got %d", counter.total())
	}
	if repo.upserts != 0 {
		t.Errorf("Expected no cache write on hit, got %d", repo.upserts)
	}
}

func TestDiscoverRefreshBypassesCache(t *testing.T) {
	counter := newCountingMux(http.NotFoundHandler())
	server := httptest.NewServer(counter)
	defer server.Close()

	origin, _ := urlutil.Origin(server.URL)

	repo := newFakeRepo()
	now := time.Now().UTC()
	repo.entries[origin] = database.DiscoveryCacheEntry{
		SourceOrigin:   origin,
		SourceURL:      server.URL,
		CandidatesJSON: `[]`,
		Status:         database.StatusEmpty,
		CheckedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}

	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL+"/post/1", true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Cached {
		t.Error("Expected refresh to re-probe")
	}
	if counter.total() == 0 {
		t.Error("Expected network calls during refresh")
	}
	if repo.upserts != 1 {
		t.Errorf("Expected one cache write after refresh, got %d", repo.upserts)
	}
}

func TestDiscoverMalformedCacheIsDropped(t *testing.T) {
	counter := newCountingMux(http.NotFoundHandler())
	server := httptest.NewServer(counter)
	defer server.Close()

	origin, _ := urlutil.Origin(server.URL)

	repo := newFakeRepo()
	now := time.Now().UTC()
	repo.entries[origin] = database.DiscoveryCacheEntry{
		SourceOrigin:   origin,
		SourceURL:      server.URL,
		CandidatesJSON: `{this is not json`,
		Status:         database.StatusSuccess,
		CheckedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}

	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL, false)
	if err != nil {
		t.Fatalf("Expected malformed cache to be dropped, not thrown, got: %v", err)
	}
	if result.Cached {
		t.Error("Expected re-probe after dropping malformed cache")
	}
	if counter.total() == 0 {
		t.Error("Expected network calls after dropping malformed cache")
	}
}

func TestDiscoverMaxScoreWinsDedup(t *testing.T) {
	// /feed is reachable both via page link (100) and the common path
	// list (<=50); the page link score must win.
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/feed"></head></html>`))
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedXML))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	repo := newFakeRepo()
	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL+"/post", false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(result.Candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d: %+v", len(result.Candidates), result.Candidates)
	}
	if result.Candidates[0].Score != 100 {
		t.Errorf("Expected max-wins score 100, got: %d", result.Candidates[0].Score)
	}
	if result.Candidates[0].DiscoveredFrom != StrategyPageLink {
		t.Errorf("Expected page_link strategy to win, got: %s", result.Candidates[0].DiscoveredFrom)
	}
}

func TestDiscoverEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	repo := newFakeRepo()
	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL+"/nothing", false)
	if err != nil {
		t.Fatalf("Expected no-feed runs to return a result, got error: %v", err)
	}

	if len(result.Candidates) != 0 {
		t.Errorf("Expected no candidates, got: %+v", result.Candidates)
	}

	origin, _ := urlutil.Origin(server.URL)
	entry, _ := repo.GetByOrigin(origin)
	if entry == nil {
		t.Fatal("Expected cache entry for empty run")
	}
	if entry.Status != database.StatusEmpty {
		t.Errorf("Expected EMPTY status, got: %s", entry.Status)
	}
	if got := entry.ExpiresAt.Sub(entry.CheckedAt); got != 24*time.Hour {
		t.Errorf("Expected 24h TTL for empty run, got: %v", got)
	}
	if entry.LastError == "" {
		t.Error("Expected the failed page fetch to be recorded as last error")
	}
}

func TestDiscoverValidationStopsAtResultCap(t *testing.T) {
	feedPaths := []string{"/f1", "/f2", "/f3", "/f4", "/f5", "/f6", "/f7"}

	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString("<html><head>")
		for _, path := range feedPaths {
			b.WriteString(`<link rel="alternate" type="application/rss+xml" href="` + path + `">`)
		}
		b.WriteString("</head></html>")
		w.Write([]byte(b.String()))
	})
	for _, path := range feedPaths {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(testFeedXML))
		})
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	counter := newCountingMux(mux)
	server := httptest.NewServer(counter)
	defer server.Close()

	repo := newFakeRepo()
	d := testDiscoverer(repo, DefaultOptions())

	result, err := d.Discover(context.Background(), server.URL+"/post", false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(result.Candidates) != 5 {
		t.Fatalf("Expected validation to stop at 5 candidates, got %d", len(result.Candidates))
	}

	// Equal scores break ties deterministically; the last-ranked feeds
	// must never have been fetched.
	if counter.count("/f6") != 0 || counter.count("/f7") != 0 {
		t.Errorf("Expected early stop before /f6 and /f7, got %d and %d fetches",
			counter.count("/f6"), counter.count("/f7"))
	}
}

func TestDiscoverInputErrors(t *testing.T) {
	repo := newFakeRepo()
	opts := DefaultOptions()
	client := NewClient("feedprobe-test/1.0", opts)
	d := NewDiscoverer(repo, feed.NewParser(), client, opts)

	if _, err := d.Discover(context.Background(), "not a url", false); !errors.Is(err, urlutil.ErrInvalidURL) {
		t.Errorf("Expected ErrInvalidURL, got: %v", err)
	}

	if _, err := d.Discover(context.Background(), "http://127.0.0.1/feed", false); !errors.Is(err, urlutil.ErrUnsafeHost) {
		t.Errorf("Expected ErrUnsafeHost, got: %v", err)
	}

	if repo.upserts != 0 {
		t.Errorf("Expected input errors to never be cached, got %d writes", repo.upserts)
	}
}
