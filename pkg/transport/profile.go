package transport

import "maps"

// Profile is a named, immutable set of request headers. Every FetchText call
// sends exactly the headers of the profile it is given.
type Profile struct {
	name    string
	headers map[string]string
}

// NewProfile copies headers into a new Profile.
func NewProfile(name string, headers map[string]string) Profile {
	return Profile{name: name, headers: maps.Clone(headers)}
}

// Name returns the profile name. It is part of the cache key.
func (p Profile) Name() string {
	return p.name
}

// Headers returns a copy of the profile's headers.
func (p Profile) Headers() map[string]string {
	return maps.Clone(p.headers)
}

// Get returns a single header value, or "" when the profile lacks it.
func (p Profile) Get(key string) string {
	return p.headers[key]
}
