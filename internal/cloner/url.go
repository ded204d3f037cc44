package cloner

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL into a deduplication key. It lowercases
// the scheme and host, removes default ports and the fragment, and sorts
// query parameters. The result is never fetched.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		// Queries that do not round-trip (semicolons, bad escapes) are kept verbatim.
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// ResolveReference resolves ref against base and drops the fragment. The
// query is kept as written; signed and order-sensitive asset URLs must be
// fetched verbatim. It returns false for references that never point at a
// fetchable resource (data URIs, fragments, javascript:, mailto: and similar).
func ResolveReference(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"data:", "javascript:", "mailto:", "tel:", "about:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := parsed
	if base != nil {
		abs = base.ResolveReference(parsed)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}

// DedupKey returns the key under which rawURL is deduplicated: its
// normalized form, or rawURL itself when it does not parse.
func DedupKey(rawURL string) string {
	if key, err := NormalizeURL(rawURL); err == nil {
		return key
	}
	return rawURL
}

// HostOf returns the lowercase hostname of rawURL or "unknown".
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
