// Package artwork looks up cover art for identified tracks. Lookups are
// best-effort: callers treat any failure as "no artwork".
package artwork

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/track"
)

// Provider fetches an artwork URL for a track. Providers return ErrNotFound
// when the catalog has no match.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, t track.Track) (string, error)
}

// ErrNotFound matches a lookup with no catalog result.
var ErrNotFound = errors.Newf("artwork not found").
	Component("artwork").
	Category(errors.CategoryNotFound).
	Build()

const (
	DefaultCacheTTL = 24 * time.Hour
	negativeTTL     = 30 * time.Minute
	fetchTimeout    = 5 * time.Second
)

// negative marks a cached "not found" answer.
type negative struct{}

// Stats are cumulative cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Errors uint64
	Items  int
}

// Cache wraps a Provider with an in-memory cache. Concurrent lookups of the
// same query share one fetch.
type Cache struct {
	provider Provider
	cache    *cache.Cache
	group    singleflight.Group
	log      logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	errs   atomic.Uint64
}

func NewCache(p Provider, ttl time.Duration, log logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = GetLogger()
	}
	return &Cache{
		provider: p,
		cache:    cache.New(ttl, ttl*2),
		log:      log.With(logger.String("provider", p.Name())),
	}
}

func cacheKey(t track.Track) string {
	return strings.ToLower(t.Query())
}

// Lookup returns the artwork URL for t, or "" when the provider has none.
// Provider errors other than ErrNotFound are returned and not cached.
func (c *Cache) Lookup(ctx context.Context, t track.Track) (string, error) {
	key := cacheKey(t)
	if key == "" {
		return "", nil
	}
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		if url, ok := v.(string); ok {
			return url, nil
		}
		return "", nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		start := time.Now()
		url, err := c.provider.Fetch(fctx, t)
		switch {
		case errors.Is(err, ErrNotFound):
			c.cache.Set(key, negative{}, negativeTTL)
			c.log.Debug("no artwork found", logger.String("query", key))
			return "", nil
		case err != nil:
			c.errs.Add(1)
			return "", err
		}
		c.cache.Set(key, url, cache.DefaultExpiration)
		c.log.Debug("artwork cached",
			logger.String("query", key),
			logger.Duration("elapsed", time.Since(start)))
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Stats returns the current cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errs.Load(),
		Items:  c.cache.ItemCount(),
	}
}

// Flush drops all cached entries.
func (c *Cache) Flush() {
	c.cache.Flush()
}
