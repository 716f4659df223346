package memory

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// EmbedMode selects which side of an asymmetric embedding model is used.
type EmbedMode string

const (
	// ModePassage embeds text that will be stored and searched over.
	ModePassage EmbedMode = "passage"
	// ModeQuery embeds a search query.
	ModeQuery EmbedMode = "query"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string, mode EmbedMode) ([]float32, error)
}

// CachingEmbedder memoizes query-mode embeddings. Recall embeds the incoming
// user message on every turn, and repeated questions are common.
// Passage embeddings are never cached since each message is embedded once.
type CachingEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachingEmbedder wraps inner with a cache holding about maxEntries vectors.
func NewCachingEmbedder(inner Embedder, maxEntries int64) (*CachingEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,

		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

// Embed implements Embedder.
func (c *CachingEmbedder) Embed(ctx context.Context, text string, mode EmbedMode) ([]float32, error) {
	if mode != ModeQuery {
		return c.inner.Embed(ctx, text, mode)
	}
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text, mode)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachingEmbedder) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *CachingEmbedder) Close() { c.cache.Close() }
