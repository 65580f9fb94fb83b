package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
)

var errLightweight = errors.New("embeddings are not produced in lightweight mode")

// Lightweight is the keyword-only variant. It never produces vectors.
type Lightweight struct{}

// NewLightweight creates the lightweight provider.
func NewLightweight() *Lightweight { return &Lightweight{} }

// Mode implements Provider.
func (Lightweight) Mode() mode.Mode { return mode.Lightweight }

// Dimension implements Provider. Lightweight deployments have no vector index.
func (Lightweight) Dimension() int { return 0 }

// Embed implements Provider.
func (Lightweight) Embed(context.Context, string) ([]float32, error) {
	return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, errLightweight)
}

// EmbedBatch implements Provider.
func (Lightweight) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, errLightweight)
}

// Probe implements Provider: keyword matching has no model to be down.
func (Lightweight) Probe(context.Context) health.Component {
	return newComponent(health.Healthy, time.Now(), map[string]string{
		"mode":      string(mode.Lightweight),
		"retrieval": "keyword",
	})
}
