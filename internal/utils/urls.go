package utils

import (
	"net/url"
	"strings"
)

// NormalizeFeedURL reduces a feed URL to its duplicate-detection key.
// The key is scheme-insensitive, query-insensitive and ignores a trailing
// slash, so "https://Example.com/feed/?utm=1" and "http://example.com/feed"
// normalize to the same value. Unparseable input falls back to a trimmed,
// lowercased copy of the raw string.
func NormalizeFeedURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(trimmed, "/"))
	}

	host := strings.ToLower(u.Host)
	path := strings.TrimRight(u.Path, "/")

	return host + path
}

// HostFromURL returns the host portion of a URL, used as a fallback title
// for feeds declared without one. Returns the raw string when it cannot be
// parsed as a URL.
func HostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	return u.Host
}
