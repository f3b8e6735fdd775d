package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/capitalize-ai/voicechat/pkg/metrics"
)

// EmbeddingCache remembers chunk embeddings across rebuilds so that adding
// one document does not re-embed every other one.
type EmbeddingCache struct {
	cache *cache.Cache
}

// NewEmbeddingCache creates a cache whose entries expire after ttl.
func NewEmbeddingCache(ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{cache: cache.New(ttl, 2*ttl)}
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text under model.
func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	if x, found := c.cache.Get(cacheKey(model, text)); found {
		metrics.EmbeddingCacheHits.WithLabelValues("hit").Inc()
		return x.([]float32), true
	}
	metrics.EmbeddingCacheHits.WithLabelValues("miss").Inc()
	return nil, false
}

// Set stores vector for text under model.
func (c *EmbeddingCache) Set(model, text string, vector []float32) {
	c.cache.Set(cacheKey(model, text), vector, cache.DefaultExpiration)
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	return c.cache.ItemCount()
}
