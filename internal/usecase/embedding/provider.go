package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
)

// Provider is the mode-specific embedding capability. Exactly one variant is built
// at startup from the validated mode.
type Provider interface {
	Mode() mode.Mode
	Dimension() int
	// Embed is the strict path: it never substitutes another model.
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Probe reports the provider's health without mutating anything.
	Probe(ctx context.Context) health.Component
}

// Path identifies the model that produced a vector.
type Path string

// Embedding paths.
const (
	PathRemote        Path = "remote"
	PathLocal         Path = "local"
	PathLocalFallback Path = "local_fallback"
)

// FallbackEmbedder is the explicit opt-in to local substitution on remote failure.
type FallbackEmbedder interface {
	EmbedWithFallback(ctx context.Context, text string) ([]float32, Path, error)
	EmbedBatchWithFallback(ctx context.Context, texts []string) ([][]float32, Path, error)
}

// dimensioned is implemented by models that know their output size.
type dimensioned interface {
	Dimension() int
}

const probeText = "health check"

func embedOne(ctx context.Context, e domain.Embedder, text string, dim int) ([]float32, error) {
	res, err := e.Embed(ctx, text)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify the upstream error
	}
	if err := domain.CheckDimension(res.Embedding, dim); err != nil {
		return nil, err
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
	return res.Embedding, nil
}

func embedMany(ctx context.Context, e domain.Embedder, texts []string, dim int) ([][]float32, error) {
	var res domain.BatchEmbeddingResult
	var err error
	if be, ok := e.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, e, texts)
	}
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify the upstream error
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			domain.ErrEmbeddingUnavailable, len(res.Embeddings), len(texts))
	}
	for i, v := range res.Embeddings {
		if err := domain.CheckDimension(v, dim); err != nil {
			return nil, fmt.Errorf("vector [%d]: %w", i, err)
		}
	}
	return res.Embeddings, nil
}

// classify keeps malformed-input errors as they are and tags the rest as
// ErrEmbeddingUnavailable. A wrong-length vector is a malformed upstream payload:
// it stays ErrDimensionMismatch as well so ingestion still aborts on it.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmbeddingMalformedInput),
		errors.Is(err, domain.ErrEmbeddingUnavailable):
		return err
	default:
		return domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	}
}

func checkModel(ctx context.Context, e domain.Embedder, dim int) error {
	if hc, ok := e.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return err //nolint:wrapcheck // raw upstream message goes into health details
		}
		return nil
	}
	_, err := embedOne(ctx, e, probeText, dim)
	return err
}

func newComponent(status health.Status, started time.Time, details map[string]string) health.Component {
	return health.Component{
		Name:      health.ComponentEmbedding,
		Status:    status,
		Details:   details,
		CheckedAt: started,
		Latency:   time.Since(started),
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
