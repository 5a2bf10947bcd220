// Package cache provides an optional Redis-backed HTTP response cache for
// the webcam transport.
//
// Entries are keyed by request URL and header profile, and always carry a
// TTL so Redis evicts them on its own. Nothing is kept beyond that TTL.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		URL:     "https://sochi.camera/widget/widget.json?s68",
//		Profile: "detail",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the site, then:
//		entry = cache.NewEntry(resp.StatusCode, resp.Header, body, 5*time.Minute)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # TTL
//
// The TTL of an entry comes from the response's Expires header. Without one,
// the caller-supplied fallback is used. Responses marked
// "Cache-Control: no-store" get a zero TTL and are never stored.
//
// # Metrics
//
//   - rosacams_cache_hits_total
//   - rosacams_cache_misses_total
//   - rosacams_cache_errors_total{operation}
package cache
