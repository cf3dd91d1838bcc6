package enrich

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"harmonycore/pkg/domain"
)

// Cached memoizes successful lookups of an underlying provider. Failures are
// never cached so transient errors can recover on the next call.
type Cached struct {
	next  Provider
	cache *lru.Cache[string, domain.Record]
}

// NewCached wraps p with an LRU cache holding up to size identifiers.
func NewCached(p Provider, size int) (*Cached, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	c, err := lru.New[string, domain.Record](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: p, cache: c}, nil
}

// Lookup serves id from cache or delegates.
func (c *Cached) Lookup(ctx context.Context, id string) (domain.Record, error) {
	if rec, ok := c.cache.Get(id); ok {
		return rec.Clone(), nil
	}
	rec, err := c.next.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, rec.Clone())
	return rec, nil
}

// CacheDirectory wraps every provider of d with its own cache.
func CacheDirectory(d Directory, size int) (Directory, error) {
	out := make(Directory, len(d))
	for family, p := range d {
		cp, err := NewCached(p, size)
		if err != nil {
			return nil, fmt.Errorf("%s cache: %w", family, err)
		}
		out[family] = cp
	}
	return out, nil
}
