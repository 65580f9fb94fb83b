package ingestion

import (
	"context"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
)

// Source fetches raw postings from one board.
type Source interface {
	Name() job.Source
	Fetch(ctx context.Context) ([]job.RawPosting, error)
}

// Repository is the vector store surface ingestion writes to.
type Repository interface {
	IndexDimension(ctx context.Context) (int, error)
	KnownFingerprints(ctx context.Context, fps []string) (map[string]bool, error)
	Upsert(ctx context.Context, postings []job.Posting) error
	// UpsertProvisional stores postings without registering their fingerprints.
	UpsertProvisional(ctx context.Context, postings []job.Posting) error
}

// Embedder produces posting vectors. Nil in lightweight deployments.
type Embedder interface {
	Mode() mode.Mode
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
