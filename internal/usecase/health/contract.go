package health

import (
	"context"

	"github.com/kailas-cloud/jobdex/internal/domain/health"
)

// VectorStore is the vector index surface health reads.
type VectorStore interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (health.StoreStats, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingProber is the mode-specific embedding probe.
type EmbeddingProber interface {
	Probe(ctx context.Context) health.Component
}

// RerankChecker checks the cross-encoder.
type RerankChecker interface {
	HealthCheck(ctx context.Context) error
}
