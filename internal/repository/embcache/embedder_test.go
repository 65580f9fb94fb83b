package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/domain"
)

func TestEmbed_CacheMissThenHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.5, 0.25}, TotalTokens: 7}}
	c, kv := newTestCached(t, inner)
	ctx := context.Background()

	first, err := c.Embed(ctx, "go engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TotalTokens != 7 {
		t.Errorf("miss tokens = %d, want 7", first.TotalTokens)
	}
	if kv.lastTTL != DefaultTTL {
		t.Errorf("ttl = %v", kv.lastTTL)
	}

	second, err := c.Embed(ctx, "go engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if second.TotalTokens != 0 || second.Embedding[1] != 0.25 {
		t.Errorf("hit = %+v", second)
	}
}

func TestEmbed_InnerErrorNotCached(t *testing.T) {
	upstream := errors.New("HuggingFace API timeout")
	inner := &mockEmbedder{err: upstream}
	c, kv := newTestCached(t, inner)

	_, err := c.Embed(context.Background(), "x")
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(kv.data) != 0 {
		t.Error("failures must not be cached")
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	c, kv := newTestCached(t, inner)
	kv.getErr = errors.New("connection reset")

	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCacheKey_IncludesModel(t *testing.T) {
	c1, _ := newTestCached(t, &mockEmbedder{})
	c2 := New(&mockEmbedder{}, &mockKVStore{}, "jobdex:", "other-model", nil, nil)
	if c1.cacheKey("x") == c2.cacheKey("x") {
		t.Error("different models must not share keys")
	}
	if !strings.HasPrefix(c1.cacheKey("x"), "jobdex:emb_cache:") {
		t.Errorf("key = %q", c1.cacheKey("x"))
	}
}

func TestBatchEmbed_MixedHitsMisses(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}, TotalTokens: 3}}
	c, _ := newTestCached(t, inner)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "cached"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	res, err := c.BatchEmbed(ctx, []string{"new-a", "cached", "new-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(inner.batchTexts, ",") != "new-a,new-b" {
		t.Errorf("inner got %v", inner.batchTexts)
	}
	if len(res.Embeddings) != 3 || res.Embeddings[1] == nil {
		t.Fatalf("embeddings = %v", res.Embeddings)
	}
	if res.TotalTokens != 6 {
		t.Errorf("tokens = %d, want 6", res.TotalTokens)
	}
}

func TestBatchEmbed_AllHits(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	c, _ := newTestCached(t, inner)
	ctx := context.Background()
	_, _ = c.BatchEmbed(ctx, []string{"a", "b"})

	if _, err := c.BatchEmbed(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", inner.batchCalls)
	}
}

func TestBatchEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{batchErr: errors.New("503 Service Unavailable")}
	c, _ := newTestCached(t, inner)
	if _, err := c.BatchEmbed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	c, _ := newTestCached(t, &mockEmbedder{})
	res, err := c.BatchEmbed(context.Background(), nil)
	if err != nil || len(res.Embeddings) != 0 {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestHealthCheck_BypassesCache(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0}}}
	c, _ := newTestCached(t, inner)

	if _, err := c.Embed(context.Background(), "health check"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inner.err = errors.New("HuggingFace API timeout")
	err := c.HealthCheck(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HuggingFace API timeout") {
		t.Fatalf("expected upstream failure despite a cached vector, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

func TestHealthCheck_ForwardsToChecker(t *testing.T) {
	inner := &checkingEmbedder{healthErr: errors.New("401 unauthorized")}
	c := New(inner, &mockKVStore{data: map[string][]byte{}}, "jobdex:", "bge-small", nil, zap.NewNop())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, inner.healthErr) {
		t.Fatalf("expected inner health error, got %v", err)
	}
	if inner.calls != 0 {
		t.Error("a checker must not be probed through Embed")
	}
}
