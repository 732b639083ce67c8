package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"feedprobe/app/urlutil"
)

const (
	acceptHTML = "text/html, application/xhtml+xml, application/rss+xml;q=0.9, application/atom+xml;q=0.9, */*;q=0.1"
	acceptFeed = "application/rss+xml, application/atom+xml, application/rdf+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1"

	maxRedirects = 10
)

// Client performs bounded outbound fetches for the discovery pipeline.
// Every request carries the fetch timeout, the body size cap, the crawler
// User-Agent, and (unless private hosts are allowed) a host safety check
// on the target and on each redirect hop.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodySize  int64
	allowPrivate bool
}

func NewClient(userAgent string, opts Options) *Client {
	c := &Client{
		userAgent:    userAgent,
		maxBodySize:  opts.MaxBodySize,
		allowPrivate: opts.AllowPrivateHosts,
	}

	c.httpClient = &http.Client{
		Timeout: opts.GetFetchTimeout(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if !c.allowPrivate {
				if err := urlutil.CheckHost(req.URL.Hostname()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
			}
			return nil
		},
	}

	return c
}

// FetchHTML retrieves a page with HTML-flavored Accept headers.
func (c *Client) FetchHTML(ctx context.Context, url string) ([]byte, error) {
	return c.fetch(ctx, url, acceptHTML)
}

// FetchFeed retrieves a candidate document with feed-flavored Accept
// headers.
func (c *Client) FetchFeed(ctx context.Context, url string) ([]byte, error) {
	return c.fetch(ctx, url, acceptFeed)
}

func (c *Client) fetch(ctx context.Context, url, accept string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if !c.allowPrivate {
		if err := urlutil.CheckHost(req.URL.Hostname()); err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxBodySize)
	}

	return data, nil
}

// Timeout reports the per-fetch timeout, mostly for logging.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}
