package embcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/jobdex/internal/domain"
)

// LRUEmbedder keeps recent vectors in process, in front of the shared cache.
// Batches pass straight through; only single-text calls (search queries) are cached.
type LRUEmbedder struct {
	inner      domain.Embedder
	model      string
	cache      *expirable.LRU[string, []float32]
	cacheTotal *prometheus.CounterVec
}

// NewLRU wraps inner with a bounded, expiring in-process cache. A non-positive size
// or ttl returns inner unchanged.
func NewLRU(inner domain.Embedder, model string, size int, ttl time.Duration, cacheTotal *prometheus.CounterVec) domain.Embedder {
	if inner == nil || size <= 0 || ttl <= 0 {
		return inner
	}
	return &LRUEmbedder{
		inner:      inner,
		model:      model,
		cache:      expirable.NewLRU[string, []float32](size, nil, ttl),
		cacheTotal: cacheTotal,
	}
}

// Embed returns a copy of the cached vector or calls inner.
func (l *LRUEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := l.model + "\x00" + text
	if vec, ok := l.cache.Get(key); ok {
		l.inc("lru_hit")
		return domain.EmbeddingResult{Embedding: clone(vec)}, nil
	}
	l.inc("lru_miss")

	res, err := l.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if len(res.Embedding) > 0 {
		l.cache.Add(key, clone(res.Embedding))
	}
	return res, nil
}

// BatchEmbed delegates to inner.
func (l *LRUEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	var err error
	if be, ok := l.inner.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, l.inner, texts)
	}
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck bypasses the cache.
func (l *LRUEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := l.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // forwarded as is
	}
	if _, err := l.inner.Embed(ctx, "health check"); err != nil {
		return fmt.Errorf("inner health check: %w", err)
	}
	return nil
}

// Len returns the number of cached vectors.
func (l *LRUEmbedder) Len() int { return l.cache.Len() }

func (l *LRUEmbedder) inc(result string) {
	if l.cacheTotal != nil {
		l.cacheTotal.WithLabelValues(result).Inc()
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
