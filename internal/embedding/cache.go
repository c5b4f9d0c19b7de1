package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes embeddings of repeated texts. HyDE and the summary
// strategies embed the same sub-question more than once per step.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float64]
}

// NewCached wraps inner with an LRU of the given size (<= 0 means 512).
func NewCached(inner Embedder, size int) (*Cached, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c}, nil
}

func (c *Cached) Name() string { return c.inner.Name() }

// Prepare invalidates the cache because the vector space may change.
func (c *Cached) Prepare(corpus []string) error {
	c.cache.Purge()
	return c.inner.Prepare(corpus)
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// Len reports the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(text string) string {
	h := sha1.Sum([]byte(text))
	return hex.EncodeToString(h[:])
}
