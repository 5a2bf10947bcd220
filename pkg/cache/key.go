package cache

import (
	"net/url"
	"strings"
)

// CacheKey identifies a cached response.
type CacheKey struct {
	// URL is the full request URL
	URL string

	// Profile is the name of the header profile the request was sent with.
	// The same URL can answer differently depending on Origin/Referer.
	Profile string
}

// String generates a deterministic Redis key.
// Format: rosacams:<profile>:<scheme>://<host><path>?<raw query>
//
// Scheme and host are lower-cased. The raw query is kept verbatim because
// widget tokens are bare query strings ("?s68") that url.Values would rewrite.
//
// Example:
//
//	rosacams:detail:https://sochi.camera/widget/widget.json?s68
func (k CacheKey) String() string {
	profile := k.Profile
	if profile == "" {
		profile = "default"
	}

	target := k.URL
	if u, err := url.Parse(k.URL); err == nil && u.Host != "" {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		target = u.String()
	}

	return strings.Join([]string{"rosacams", profile, target}, ":")
}
