package geocode

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/hkcovid-dashboard/internal/metrics"
)

// DefaultCacheSize bounds the cache when no size is configured.
const DefaultCacheSize = 1024

// CachedProvider wraps a Provider with an in-memory LRU cache of hits.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, Point]
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner Provider, maxEntries int) *CachedProvider {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	// New only fails for a non-positive size.
	cache, _ := lru.New[string, Point](maxEntries)
	return &CachedProvider{inner: inner, cache: cache}
}

// Geocode implements Provider.
func (c *CachedProvider) Geocode(ctx context.Context, query string) (Point, bool, error) {
	key := cacheKey(query)
	if p, ok := c.cache.Get(key); ok {
		metrics.ObserveGeocodeCache(true)
		return p, true, nil
	}
	metrics.ObserveGeocodeCache(false)
	p, found, err := c.inner.Geocode(ctx, query)
	if err != nil {
		return p, found, err
	}
	// Misses stay uncached so a later refresh can retry them.
	if found {
		c.cache.Add(key, p)
	}
	return p, found, nil
}

// Len reports the number of cached entries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
