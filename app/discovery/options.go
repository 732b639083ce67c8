package discovery

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"feedprobe/app/database"
)

// Options tunes the discovery pipeline. All values default to the fixed
// production constants; an optional YAML file overrides individual fields.
type Options struct {
	CommonPaths []string `yaml:"common_paths"`

	PageLinkScore   int `yaml:"page_link_score"`
	SiteLinkScore   int `yaml:"site_link_score"`
	CommonPathScore int `yaml:"common_path_score"` // first path; descending by list position

	ValidationLimit int `yaml:"validation_limit"`
	ResultLimit     int `yaml:"result_limit"`

	FetchTimeout int   `yaml:"fetch_timeout"` // seconds
	MaxBodySize  int64 `yaml:"max_body_size"` // bytes

	SuccessTTL int `yaml:"success_ttl"` // seconds
	EmptyTTL   int `yaml:"empty_ttl"`
	ErrorTTL   int `yaml:"error_ttl"`

	// AllowPrivateHosts disables the SSRF host guard. Only meant for
	// tests and closed-network deployments.
	AllowPrivateHosts bool `yaml:"allow_private_hosts"`
}

func DefaultOptions() Options {
	return Options{
		CommonPaths: []string{
			"/feed",
			"/rss",
			"/rss.xml",
			"/atom.xml",
			"/feed.xml",
			"/index.xml",
		},
		PageLinkScore:   100,
		SiteLinkScore:   80,
		CommonPathScore: 50,
		ValidationLimit: 12,
		ResultLimit:     5,
		FetchTimeout:    10,
		MaxBodySize:     1536 * 1024,
		SuccessTTL:      int((7 * 24 * time.Hour).Seconds()),
		EmptyTTL:        int((24 * time.Hour).Seconds()),
		ErrorTTL:        int((6 * time.Hour).Seconds()),
	}
}

// LoadOptions reads an options file over the defaults. An empty path or a
// missing file yields the defaults unchanged.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("failed to read discovery options: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return DefaultOptions(), fmt.Errorf("failed to parse discovery options: %w", err)
	}

	return opts, nil
}

func (o Options) GetFetchTimeout() time.Duration {
	if o.FetchTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(o.FetchTimeout) * time.Second
}

// TTLFor returns the cache lifetime for a run outcome. Success is trusted
// far longer than failure states, which are retried sooner.
func (o Options) TTLFor(status database.Status) time.Duration {
	switch status {
	case database.StatusSuccess:
		return time.Duration(o.SuccessTTL) * time.Second
	case database.StatusError:
		return time.Duration(o.ErrorTTL) * time.Second
	default:
		return time.Duration(o.EmptyTTL) * time.Second
	}
}
