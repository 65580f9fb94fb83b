package search

import (
	"context"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
)

// Retriever is the first retrieval stage. It returns at most k candidates ordered
// by score descending; the order is the tie-break order for everything downstream.
type Retriever interface {
	Retrieve(ctx context.Context, q *query.Query, k int) ([]result.Hit, error)
}

// VectorIndex runs nearest-neighbour queries.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]result.Hit, error)
}

// Corpus lists every indexed posting in id order.
type Corpus interface {
	All(ctx context.Context) ([]job.Posting, error)
}

// QueryEmbedder is the strict embedding path used for queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache memoizes ranked result sets.
type Cache interface {
	Key(q *query.Query, m mode.Mode) string
	Get(ctx context.Context, key string) (result.Set, bool)
	Set(ctx context.Context, key string, e result.Set)
}
