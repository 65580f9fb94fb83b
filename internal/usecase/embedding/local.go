package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
)

// Local runs the in-process model.
type Local struct {
	model domain.Embedder
	name  string
	dim   int
}

// NewLocal creates the local provider. The model dimension, when known, must equal dim.
func NewLocal(model domain.Embedder, name string, dim int) (*Local, error) {
	if d, ok := model.(dimensioned); ok && d.Dimension() != dim {
		return nil, fmt.Errorf("local model %s: %w: got %d, want %d",
			name, domain.ErrDimensionMismatch, d.Dimension(), dim)
	}
	return &Local{model: model, name: name, dim: dim}, nil
}

// Mode implements Provider.
func (l *Local) Mode() mode.Mode { return mode.Local }

// Dimension implements Provider.
func (l *Local) Dimension() int { return l.dim }

// Embed implements Provider.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := embedOne(ctx, l.model, text, l.dim)
	if err != nil {
		return nil, classify(err)
	}
	return vec, nil
}

// EmbedBatch implements Provider.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := embedMany(ctx, l.model, texts, l.dim)
	if err != nil {
		return nil, classify(err)
	}
	return vecs, nil
}

// Probe implements Provider.
func (l *Local) Probe(ctx context.Context) health.Component {
	started := time.Now()
	details := map[string]string{
		"mode":      string(mode.Local),
		"model":     l.name,
		"dimension": itoa(l.dim),
	}
	if err := checkModel(ctx, l.model, l.dim); err != nil {
		details["model_error"] = err.Error()
		return newComponent(health.Unavailable, started, details)
	}
	return newComponent(health.Healthy, started, details)
}
