package external

import (
	"io"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes lookups of a slower provider for a fixed TTL.
// Errors are never cached.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

type cachedValue struct {
	value string
	ok    bool
}

// NewCachedProvider wraps inner with a TTL cache.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Name returns the wrapped provider's name.
func (p *CachedProvider) Name() string { return p.inner.Name() }

// Get returns the cached value for key, consulting the wrapped provider on a miss.
func (p *CachedProvider) Get(key string) (string, bool, error) {
	if hit, found := p.cache.Get(key); found {
		v := hit.(cachedValue)
		return v.value, v.ok, nil
	}

	value, ok, err := p.inner.Get(key)
	if err != nil {
		return "", false, err
	}
	p.cache.SetDefault(key, cachedValue{value: value, ok: ok})
	return value, ok, nil
}

// Unwrap returns the wrapped provider.
func (p *CachedProvider) Unwrap() Provider { return p.inner }

// Close closes the wrapped provider if it holds resources.
func (p *CachedProvider) Close() error {
	p.cache.Flush()
	if c, ok := p.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
