package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with LRU caching so repeated inputs
// never hit the backend twice. Keys combine the domain with a content
// hash, so the same string embedded as text and as code occupies two
// distinct entries.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder wrapping the given
// backend. Cache size is the number of unique (domain, input) vectors
// kept in memory.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}
}

// cacheKey derives the cache key for one input in one domain. SHA-256
// keeps keys fixed-width regardless of input size.
func cacheKey(domain Domain, input string) string {
	sum := sha256.Sum256([]byte(input))
	return string(domain) + ":" + hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where available and sends only the
// misses to the backend, preserving input order in the result.
func (c *CachedEmbedder) Embed(ctx context.Context, domain Domain, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(inputs))
	uncachedIndices := make([]int, 0, len(inputs))
	uncachedInputs := make([]string, 0, len(inputs))

	for i, input := range inputs {
		if vec, ok := c.cache.Get(cacheKey(domain, input)); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedInputs = append(uncachedInputs, input)
		}
	}

	if len(uncachedInputs) == 0 {
		return results, nil
	}

	vectors, err := c.inner.Embed(ctx, domain, uncachedInputs)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = vectors[j]
		c.cache.Add(cacheKey(domain, uncachedInputs[j]), vectors[j])
	}

	return results, nil
}

// Dimensions returns the backend's vector width.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Available checks whether the backend is ready.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close closes the backend.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}
