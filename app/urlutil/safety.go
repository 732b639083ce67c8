package urlutil

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// Domain suffixes that resolve inside private networks and must never be
// probed server-side.
var internalSuffixes = []string{
	".local",
	".localhost",
	".internal",
	".lan",
}

// Cyrillic lookalikes of common Latin hostname characters. A hostname
// carrying any of these is a spoofing attempt, not a real feed host.
var confusableRunes = []rune{'а', 'е', 'о', 'р', 'с', 'х'}

// CheckHost classifies a hostname as safe or unsafe for server-side
// fetching. Unsafe hosts (loopback, link-local, private ranges, internal
// domains) are the primary SSRF defense; they fail with ErrUnsafeHost.
func CheckHost(hostname string) error {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}

	if ip := net.ParseIP(strings.Trim(hostname, "[]")); ip != nil {
		if isUnsafeIP(ip) {
			return fmt.Errorf("%w: %s", ErrUnsafeHost, hostname)
		}
		return nil
	}

	ascii, err := idna.ToASCII(hostname)
	if err != nil {
		return fmt.Errorf("%w: bad internationalized hostname %q", ErrInvalidURL, hostname)
	}
	ascii = strings.ToLower(ascii)

	if hasConfusableRunes(norm.NFKC.String(hostname)) {
		return fmt.Errorf("%w: confusable characters in %q", ErrUnsafeHost, hostname)
	}

	if ascii == "localhost" {
		return fmt.Errorf("%w: %s", ErrUnsafeHost, hostname)
	}
	for _, suffix := range internalSuffixes {
		if strings.HasSuffix(ascii, suffix) {
			return fmt.Errorf("%w: %s", ErrUnsafeHost, hostname)
		}
	}

	return nil
}

func isUnsafeIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// Carrier-grade NAT (100.64.0.0/10) is not covered by IsPrivate.
	if v4 := ip.To4(); v4 != nil && v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127 {
		return true
	}

	return false
}

func hasConfusableRunes(hostname string) bool {
	for _, r := range confusableRunes {
		if strings.ContainsRune(hostname, r) {
			return true
		}
	}
	return false
}
