package weather

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// CachedSource wraps a WeatherSource and memoizes successful geocode lookups.
// Observations and forecasts always go to the inner source.
type CachedSource struct {
	domain.WeatherSource
	cache *geoCache
}

// NewCachedSource creates a cache decorator around a weather source
func NewCachedSource(inner domain.WeatherSource, maxEntries int, ttl time.Duration, clock clockwork.Clock) *CachedSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &CachedSource{
		WeatherSource: inner,
		cache: &geoCache{
			maxEntries: maxEntries,
			ttl:        ttl,
			clock:      clock,
			order:      list.New(),
			entries:    make(map[string]*list.Element),
		},
	}
}

// Geocode returns a cached result when present, otherwise asks the inner source
func (c *CachedSource) Geocode(ctx context.Context, name string) (domain.Coordinates, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if coords, ok := c.cache.get(key); ok {
		return coords, nil
	}

	coords, err := c.WeatherSource.Geocode(ctx, name)
	if err != nil {
		// Failures, including not-found, are never cached so they can be retried
		return coords, err
	}

	c.cache.put(key, coords)
	return coords, nil
}

// Len reports the number of cached geocode entries
func (c *CachedSource) Len() int {
	return c.cache.size()
}

// geoCache is a thread-safe LRU cache with optional expiry
type geoCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type geoEntry struct {
	key       string
	coords    domain.Coordinates
	expiresAt time.Time
}

func (c *geoCache) get(key string) (domain.Coordinates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.Coordinates{}, false
	}

	e := el.Value.(*geoEntry)
	if c.ttl > 0 && !c.clock.Now().Before(e.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return domain.Coordinates{}, false
	}

	c.order.MoveToFront(el)
	return e.coords, true
}

func (c *geoCache) put(key string, coords domain.Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*geoEntry)
		e.coords = coords
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&geoEntry{key: key, coords: coords, expiresAt: expiresAt})

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*geoEntry).key)
	}
}

func (c *geoCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
