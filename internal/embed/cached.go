package embed

import (
	"context"
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is used when the configured cache size is not
// positive.
const DefaultEmbeddingCacheSize = 1024

type cacheKey [sha256.Size]byte

// CachedEmbedder keeps recently embedded texts in an LRU cache keyed by
// model and text. Asking the same question twice, or re-ingesting a
// document, does not reach the backend again.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[cacheKey, []float32]
}

// NewCachedEmbedder wraps inner with a cache of cacheSize vectors.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[cacheKey, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) cacheKey {
	return sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
}

// Embed embeds one text, from the cache when possible.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.cache.Get(k); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch sends the texts that are not cached to the backend in a single
// call. Repeated texts inside one batch are sent once.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]cacheKey, len(texts))
	pending := make(map[cacheKey][]int)
	var misses []string
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			out[i] = vec
			continue
		}
		if _, seen := pending[keys[i]]; !seen {
			misses = append(misses, text)
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, text := range misses {
		k := c.key(text)
		c.cache.Add(k, fresh[j])
		for _, i := range pending[k] {
			out[i] = fresh[j]
		}
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

// Close drops the cache and closes the backend.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }
