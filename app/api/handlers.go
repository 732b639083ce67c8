package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"feedprobe/app/database"
	"feedprobe/app/feed"
	"feedprobe/app/urlutil"
)

// Parse bodies are capped at the same size as discovery fetches.
const maxParseBodySize = 1536 * 1024

func NewHandler(discoverer DiscovererInterface, repo database.DiscoveryRepository, parser *feed.Parser) *Handler {
	return &Handler{
		discoverer: discoverer,
		repo:       repo,
		parser:     parser,
	}
}

// GetDiscover handles GET /discover?url=...&refresh=1. Input errors map to
// 400 with a stable error code; "nothing found" is a normal 200 with an
// empty candidate list.
func (h *Handler) GetDiscover(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_url"})
		return
	}

	refresh := c.Query("refresh") == "1" || c.Query("refresh") == "true"

	result, err := h.discoverer.Discover(c.Request.Context(), rawURL, refresh)
	if err != nil {
		switch {
		case errors.Is(err, urlutil.ErrUnsafeHost):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsafe_host", "detail": err.Error()})
		case errors.Is(err, urlutil.ErrInvalidURL):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "detail": err.Error()})
		default:
			slog.Error("Discovery failed", "url", rawURL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	c.Header("X-Discovery-Cached", strconv.FormatBool(result.Cached))
	c.Header("X-Discovery-Candidates", strconv.Itoa(len(result.Candidates)))

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.repo.Count(); err == nil {
		health["cache_entries"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.repo.Stats()
	if err != nil {
		slog.Error("Database error", "operation", "cache_stats", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// APIListCache returns the most recently checked cache entries.
func (h *Handler) APIListCache(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	entries, err := h.repo.List(limit)
	if err != nil {
		slog.Error("Database error", "operation", "cache_list", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	list := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		list = append(list, map[string]interface{}{
			"source_origin": entry.SourceOrigin,
			"source_url":    entry.SourceURL,
			"status":        entry.Status,
			"last_error":    entry.LastError,
			"checked_at":    entry.CheckedAt,
			"expires_at":    entry.ExpiresAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": list, "count": len(list)})
}

// APIParseFeed parses a raw feed document posted in the request body.
// Exposes the parser to surrounding routers without a network fetch.
func (h *Handler) APIParseFeed(c *gin.Context) {
	feedURL := c.Query("feed_url")
	if feedURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_feed_url"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxParseBodySize))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_body"})
		return
	}

	parsed, err := h.parser.Parse(data, feedURL)
	if err != nil {
		if errors.Is(err, feed.ErrInvalidFeed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_feed", "detail": err.Error()})
			return
		}
		slog.Error("Parse failed", "feed_url", feedURL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, parsed)
}
