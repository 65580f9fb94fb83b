package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/ingest"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	logpkg "github.com/kailas-cloud/jobdex/internal/logger"
	"github.com/kailas-cloud/jobdex/internal/metrics"
	"github.com/kailas-cloud/jobdex/internal/usecase/embedding"
)

// Defaults.
const (
	DefaultFetchConcurrency = 4
	DefaultFetchTimeout     = 60 * time.Second
	DefaultMinTextLength    = 50
	DefaultMaxLinks         = 10
	DefaultBatchSize        = 32
	DefaultEmbedConcurrency = 4
	DefaultUpsertBatch      = 200
)

// DefaultExcludeKeywords drop unpaid postings.
var DefaultExcludeKeywords = []string{"unpaid", "volunteer"}

// Config tunes one ingestion run.
type Config struct {
	FetchConcurrency int
	FetchTimeout     time.Duration
	MinTextLength    int
	ExcludeKeywords  []string
	MaxLinks         int
	BatchSize        int
	EmbedConcurrency int
	UpsertBatch      int
	// IngestFallback lets cloud deployments embed with the local model when the remote fails.
	IngestFallback bool
}

func (c *Config) applyDefaults() {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = DefaultMinTextLength
	}
	if c.ExcludeKeywords == nil {
		c.ExcludeKeywords = DefaultExcludeKeywords
	}
	if c.MaxLinks < 0 {
		c.MaxLinks = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if c.UpsertBatch <= 0 {
		c.UpsertBatch = DefaultUpsertBatch
	}
}

// Service runs ingestion. One run at a time per Service.
type Service struct {
	cfg      Config
	sources  []Source
	repo     Repository
	embedder Embedder
	quality  qualityFilter
	logger   *zap.Logger
	now      func() time.Time

	running atomic.Bool
}

// New creates the ingestion service. embedder may be nil (lightweight mode):
// postings are then stored without vectors.
func New(cfg Config, sources []Source, repo Repository, embedder Embedder, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if embedder != nil && !embedder.Mode().UsesEmbeddings() {
		embedder = nil
	}
	return &Service{
		cfg:      cfg,
		sources:  sources,
		repo:     repo,
		embedder: embedder,
		quality:  newQualityFilter(cfg.MinTextLength, cfg.ExcludeKeywords, cfg.MaxLinks),
		logger:   logger,
		now:      time.Now,
	}
}

// Running reports whether a run is active.
func (s *Service) Running() bool { return s.running.Load() }

// Run executes one full ingestion. A fatal run returns the partial summary with
// Fatal set and an ErrIngestionFatal error.
func (s *Service) Run(ctx context.Context) (ingest.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.IngestionRunsTotal.WithLabelValues("skipped").Inc()
		return ingest.Summary{}, domain.ErrIngestionInProgress
	}
	defer s.running.Store(false)

	sum := ingest.Summary{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		PerSource: make(map[job.Source]int, len(s.sources)),
	}
	log := logpkg.FromContextOr(ctx, s.logger).With(zap.String("run_id", sum.RunID))
	log.Info("ingestion run started", zap.Int("sources", len(s.sources)))

	err := s.run(ctx, &sum, log)
	sum.Duration = time.Since(sum.StartedAt)
	metrics.IngestionRunDuration.Observe(sum.Duration.Seconds())

	if err != nil {
		sum.Fatal = err.Error()
		metrics.IngestionRunsTotal.WithLabelValues("fatal").Inc()
		log.Error("ingestion run aborted", append(summaryFields(&sum), zap.Error(err))...)
		return sum, domain.Wrap(domain.ErrIngestionFatal, err)
	}

	metrics.IngestionRunsTotal.WithLabelValues("ok").Inc()
	log.Info("ingestion run finished", summaryFields(&sum)...)
	return sum, nil
}

func (s *Service) run(ctx context.Context, sum *ingest.Summary, log *zap.Logger) error {
	if err := s.preflight(ctx); err != nil {
		return err
	}

	batches := s.fetchAll(ctx, sum, log)

	postings := s.normalize(batches, sum)
	postings, err := s.dropKnown(ctx, postings, sum)
	if err != nil {
		return err
	}
	if len(postings) == 0 {
		return nil
	}

	postings, provisional, err := s.embed(ctx, postings, sum, log)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, postings, sum, s.repo.Upsert); err != nil {
		return err
	}
	return s.upsert(ctx, provisional, sum, s.repo.UpsertProvisional)
}

// preflight refuses to write vectors into an index built for another dimension.
func (s *Service) preflight(ctx context.Context) error {
	if s.embedder == nil {
		return nil
	}
	dim, err := s.repo.IndexDimension(ctx)
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	if dim != 0 && dim != s.embedder.Dimension() {
		return fmt.Errorf("preflight: %w: index has %d, embedder produces %d",
			domain.ErrDimensionMismatch, dim, s.embedder.Dimension())
	}
	return nil
}

// fetchAll runs every source in parallel. Failures are recorded, never propagated.
func (s *Service) fetchAll(ctx context.Context, sum *ingest.Summary, log *zap.Logger) [][]job.RawPosting {
	out := make([][]job.RawPosting, len(s.sources))
	errs := make([]error, len(s.sources))

	var g errgroup.Group
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, src := range s.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()
			out[i], errs[i] = src.Fetch(fctx)
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range s.sources {
		name := src.Name()
		if errs[i] != nil {
			out[i] = nil
			failure := domain.Wrap(domain.ErrIngestionSourceFailure, errs[i])
			sum.SourceFailures = append(sum.SourceFailures, ingest.SourceFailure{Source: name, Error: errs[i].Error()})
			metrics.IngestionSourceFailuresTotal.WithLabelValues(string(name)).Inc()
			log.Warn("source fetch failed", zap.String("source", string(name)), zap.Error(failure))
			continue
		}
		sum.PerSource[name] += len(out[i])
		sum.Fetched += len(out[i])
		metrics.IngestionFetchedTotal.WithLabelValues(string(name)).Add(float64(len(out[i])))
	}
	return out
}

// normalize converts, dedups and filters records in source order, then adapter order.
func (s *Service) normalize(batches [][]job.RawPosting, sum *ingest.Summary) []job.Posting {
	seen := make(map[string]struct{}, sum.Fetched)
	fingerprints := make(map[string]string, sum.Fetched)

	out := make([]job.Posting, 0, sum.Fetched)
	for i, batch := range batches {
		src := s.sources[i].Name()
		for _, raw := range batch {
			p, err := job.New(src, raw)
			if err != nil {
				sum.Invalid++
				continue
			}
			if _, dup := seen[p.ID()]; dup {
				sum.Duplicates++
				continue
			}
			seen[p.ID()] = struct{}{}
			if _, dup := fingerprints[p.Fingerprint()]; dup {
				sum.Duplicates++
				continue
			}
			fingerprints[p.Fingerprint()] = p.ID()

			if reason := s.quality.reject(&p); reason != "" {
				sum.Filtered++
				continue
			}
			out = append(out, p)
		}
	}

	metrics.IngestionPostingsTotal.WithLabelValues("invalid").Add(float64(sum.Invalid))
	metrics.IngestionPostingsTotal.WithLabelValues("filtered").Add(float64(sum.Filtered))
	return out
}

// dropKnown removes postings whose content is already indexed.
func (s *Service) dropKnown(ctx context.Context, postings []job.Posting, sum *ingest.Summary) ([]job.Posting, error) {
	if len(postings) > 0 {
		fps := make([]string, len(postings))
		for i := range postings {
			fps[i] = postings[i].Fingerprint()
		}
		known, err := s.repo.KnownFingerprints(ctx, fps)
		if err != nil {
			return nil, fmt.Errorf("fingerprint lookup: %w", err)
		}
		kept := postings[:0]
		for _, p := range postings {
			if known[p.Fingerprint()] {
				sum.Duplicates++
				continue
			}
			kept = append(kept, p)
		}
		postings = kept
	}
	metrics.IngestionPostingsTotal.WithLabelValues("duplicate").Add(float64(sum.Duplicates))
	return postings, nil
}

type batchResult struct {
	vecs [][]float32
	path embedding.Path
	err  error
}

// embed vectorizes postings in batches on a bounded pool. A failed batch is dropped;
// a dimension mismatch or a failure of every batch aborts the run. Postings embedded
// by the local fallback are returned separately as provisional.
func (s *Service) embed(
	ctx context.Context, postings []job.Posting, sum *ingest.Summary, log *zap.Logger,
) (embedded, provisional []job.Posting, err error) {
	if s.embedder == nil {
		return postings, nil, nil
	}

	var ranges [][2]int
	for start := 0; start < len(postings); start += s.cfg.BatchSize {
		ranges = append(ranges, [2]int{start, min(start+s.cfg.BatchSize, len(postings))})
	}

	pool, err := ants.NewPool(s.cfg.EmbedConcurrency)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	results := make([]batchResult, len(ranges))
	var wg sync.WaitGroup
	for i, r := range ranges {
		texts := make([]string, 0, r[1]-r[0])
		for j := r[0]; j < r[1]; j++ {
			texts = append(texts, postings[j].Text())
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = s.embedBatch(ctx, texts)
		}); err != nil {
			wg.Done()
			results[i] = batchResult{err: fmt.Errorf("submit batch: %w", err)}
		}
	}
	wg.Wait()

	embedded = make([]job.Posting, 0, len(postings))
	var firstErr error
	failed := 0
	for i, r := range ranges {
		res := results[i]
		if res.err != nil {
			if errors.Is(res.err, domain.ErrDimensionMismatch) {
				return nil, nil, fmt.Errorf("embed batch %d: %w", i, res.err)
			}
			if firstErr == nil {
				firstErr = res.err
			}
			failed++
			sum.EmbedFailed += r[1] - r[0]
			log.Warn("embedding batch dropped",
				zap.Int("batch", i), zap.Int("size", r[1]-r[0]), zap.Error(res.err))
			continue
		}
		if sum.EmbedPaths == nil {
			sum.EmbedPaths = make(map[string]int)
		}
		sum.EmbedPaths[string(res.path)] += len(res.vecs)
		for j, vec := range res.vecs {
			p := postings[r[0]+j].WithEmbedding(vec)
			if res.path == embedding.PathLocalFallback {
				provisional = append(provisional, p)
				continue
			}
			embedded = append(embedded, p)
		}
	}
	sum.Embedded = len(embedded) + len(provisional)
	metrics.IngestionPostingsTotal.WithLabelValues("embed_failed").Add(float64(sum.EmbedFailed))

	if failed == len(ranges) {
		return nil, nil, fmt.Errorf("all %d embedding batches failed: %w", failed, firstErr)
	}
	return embedded, provisional, nil
}

func (s *Service) embedBatch(ctx context.Context, texts []string) batchResult {
	if fb, ok := s.embedder.(embedding.FallbackEmbedder); ok && s.cfg.IngestFallback {
		vecs, path, err := fb.EmbedBatchWithFallback(ctx, texts)
		return batchResult{vecs: vecs, path: path, err: err}
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	path := embedding.PathLocal
	if s.embedder.Mode() == mode.Cloud {
		path = embedding.PathRemote
	}
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vecs), len(texts))
	}
	return batchResult{vecs: vecs, path: path, err: err}
}

func (s *Service) upsert(
	ctx context.Context, postings []job.Posting, sum *ingest.Summary,
	write func(context.Context, []job.Posting) error,
) error {
	for start := 0; start < len(postings); start += s.cfg.UpsertBatch {
		end := min(start+s.cfg.UpsertBatch, len(postings))
		if err := write(ctx, postings[start:end]); err != nil {
			return fmt.Errorf("upsert postings [%d:%d]: %w", start, end, err)
		}
		sum.Upserted += end - start
		metrics.IngestionPostingsTotal.WithLabelValues("upserted").Add(float64(end - start))
	}
	return nil
}

func summaryFields(sum *ingest.Summary) []zap.Field {
	return []zap.Field{
		zap.Duration("duration", sum.Duration),
		zap.Int("fetched", sum.Fetched),
		zap.Int("invalid", sum.Invalid),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("filtered", sum.Filtered),
		zap.Int("embedded", sum.Embedded),
		zap.Int("embed_failed", sum.EmbedFailed),
		zap.Int("upserted", sum.Upserted),
		zap.Int("source_failures", len(sum.SourceFailures)),
	}
}
