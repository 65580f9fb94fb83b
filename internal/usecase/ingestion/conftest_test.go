package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/usecase/embedding"
)

// --- Mocks ---

type mockSource struct {
	name    job.Source
	records []job.RawPosting
	err     error
	block   chan struct{}
	started chan struct{}
}

func (m *mockSource) Name() job.Source { return m.name }

func (m *mockSource) Fetch(ctx context.Context) ([]job.RawPosting, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.records, m.err
}

type mockRepo struct {
	mu        sync.Mutex
	dim       int
	dimErr    error
	known     map[string]bool
	upsertErr   error
	upserted    []job.Posting
	provisional []job.Posting
}

func (m *mockRepo) IndexDimension(context.Context) (int, error) { return m.dim, m.dimErr }

func (m *mockRepo) KnownFingerprints(_ context.Context, fps []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, fp := range fps {
		if m.known[fp] {
			out[fp] = true
		}
	}
	return out, nil
}

func (m *mockRepo) Upsert(_ context.Context, postings []job.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.known == nil {
		m.known = make(map[string]bool)
	}
	for _, p := range postings {
		m.known[p.Fingerprint()] = true
	}
	m.upserted = append(m.upserted, postings...)
	return nil
}

func (m *mockRepo) UpsertProvisional(_ context.Context, postings []job.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.provisional = append(m.provisional, postings...)
	return nil
}

type mockEmbedder struct {
	mode   mode.Mode
	dim    int
	outDim int
	failOn string
	err    error
	calls  atomic.Int32
}

func (m *mockEmbedder) Mode() mode.Mode { return m.mode }
func (m *mockEmbedder) Dimension() int  { return m.dim }

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	for _, t := range texts {
		if m.failOn == "*" || (m.failOn != "" && strings.Contains(t, m.failOn)) {
			return nil, m.err
		}
	}
	dim := m.dim
	if m.outDim > 0 {
		dim = m.outDim
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
		out[i][0] = 1
	}
	return out, nil
}

// fallbackEmbedder reports every batch as served by the local fallback.
type fallbackEmbedder struct {
	mockEmbedder
	fallbackCalls atomic.Int32
}

func (f *fallbackEmbedder) EmbedWithFallback(ctx context.Context, text string) ([]float32, embedding.Path, error) {
	vecs, _, err := f.EmbedBatchWithFallback(ctx, []string{text})
	if err != nil {
		return nil, embedding.PathLocalFallback, err
	}
	return vecs[0], embedding.PathLocalFallback, nil
}

func (f *fallbackEmbedder) EmbedBatchWithFallback(ctx context.Context, texts []string) ([][]float32, embedding.Path, error) {
	f.fallbackCalls.Add(1)
	vecs, err := f.EmbedBatch(ctx, texts)
	return vecs, embedding.PathLocalFallback, err
}

// --- Helpers ---

func raw(id, title, desc string) job.RawPosting {
	return job.RawPosting{
		NativeID:    id,
		Title:       title,
		Company:     "Acme",
		Location:    "Remote",
		Description: desc,
	}
}

// records builds n distinct, filter-passing postings with ids prefix-0..n-1.
func records(prefix string, n int) []job.RawPosting {
	out := make([]job.RawPosting, n)
	for i := range out {
		out[i] = raw(fmt.Sprintf("%s-%d", prefix, i), "Backend Engineer",
			fmt.Sprintf("Build distributed systems in Go for team %s number %d.", prefix, i))
	}
	return out
}

func newTestService(t *testing.T, cfg Config, repo *mockRepo, emb Embedder, sources ...Source) *Service {
	t.Helper()
	return New(cfg, sources, repo, emb, nil)
}

func localEmbedder(dim int) *mockEmbedder {
	return &mockEmbedder{mode: mode.Local, dim: dim}
}
