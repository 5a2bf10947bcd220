package cache

import (
	"net/http"
	"strings"
	"time"
)

// NewEntry builds a cache entry from a response. The entry expires at the
// response's Expires header, or after fallbackTTL when the header is missing
// or unparsable.
func NewEntry(statusCode int, headers http.Header, body []byte, fallbackTTL time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		Expires:    parseExpires(headers, now, fallbackTTL),
		CachedAt:   now,
	}
}

// parseExpires derives the expiry of a response.
func parseExpires(headers http.Header, now time.Time, fallbackTTL time.Duration) time.Time {
	if strings.Contains(strings.ToLower(headers.Get("Cache-Control")), "no-store") {
		return now
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(fallbackTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(fallbackTTL)
	}

	// Already expired - nothing to cache
	if expires.Before(now) {
		return now
	}

	return expires
}
