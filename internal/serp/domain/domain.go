// Package domain reduces URLs to the bare host used to match search results
// against target sites.
package domain

import (
	"net/url"
	"strings"
)

// Normalize returns the host of raw without scheme, path, query or a leading
// "www.". A scheme is assumed when raw has none. Normalization is best
// effort: input the URL parser rejects yields "".
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !hasScheme(raw) {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	return strings.TrimPrefix(host, "www.")
}

func hasScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
