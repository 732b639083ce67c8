package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidURL = errors.New("invalid URL")
	ErrUnsafeHost = errors.New("unsafe host")
)

// Tracking parameters removed during normalization. Matched against the
// full parameter name, case-insensitively.
var trackingParamPattern = regexp.MustCompile(`(?i)^(utm_.+|fbclid|gclid|mc_cid|mc_eid|ref|ref_src|source|igshid)$`)

// NormalizeFeedURL canonicalizes a user-supplied URL and verifies the host
// is safe to fetch from server-side. Returns ErrInvalidURL for unparseable
// or non-http(s) input and ErrUnsafeHost for loopback/private/internal
// targets.
func NormalizeFeedURL(raw string) (string, error) {
	normalized, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}

	u, _ := url.Parse(normalized)
	if err := CheckHost(u.Hostname()); err != nil {
		return "", err
	}

	return normalized, nil
}

// Canonicalize normalizes a URL without the host safety check. Callers
// probing intentionally local targets (tests, explicit overrides) use this
// directly.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Scheme = scheme
	u.Host = normalizeHostPort(scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	// Trailing slash carries no meaning outside the root path.
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	u.RawQuery = stripTrackingParams(u.RawQuery)

	return u.String(), nil
}

// NormalizeContentURL resolves raw against base and canonicalizes the
// result. Best-effort: returns "" on any failure, never an error.
func NormalizeContentURL(raw, base string) string {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}

	resolved := ref
	if base != "" {
		b, err := url.Parse(base)
		if err == nil {
			resolved = b.ResolveReference(ref)
		}
	}

	normalized, err := Canonicalize(resolved.String())
	if err != nil {
		return ""
	}
	return normalized
}

// Origin returns the scheme://host[:port] tuple of a URL, used as the
// discovery cache partition key.
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	return scheme + "://" + normalizeHostPort(scheme, u.Host), nil
}

// HashString returns the hex-encoded sha256 digest of the input. Used for
// cache keys and entry identity fallback, so collision resistance matters.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func normalizeHostPort(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// stripTrackingParams removes tracking parameters from a raw query string
// while preserving the relative order and encoding of the remainder.
func stripTrackingParams(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if i := strings.Index(pair, "="); i >= 0 {
			name = pair[:i]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if trackingParamPattern.MatchString(name) {
			continue
		}
		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}
