package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/jobdex/internal/db"
	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
)

// readBatch bounds a single HGETALL pipeline.
const readBatch = 500

// store is the consumer interface for the vector store (ISP).
//
//nolint:interfacebloat // postings need hash, kv, index and search operations
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SetMulti(ctx context.Context, items []db.KVItem) error
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig holds HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Stats describes the indexed corpus.
type Stats = health.StoreStats

// Repo is the vector store adapter for job postings.
type Repo struct {
	store     store
	prefix    string
	dimension int
	hnsw      HNSWConfig
	space     string
}

// New creates a postings repository. dimension 0 means the deployment stores no
// vectors (lightweight mode): no index is created and Query is unsupported.
func New(s store, keyPrefix string, dimension int) *Repo {
	return &Repo{store: s, prefix: keyPrefix, dimension: dimension, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// WithSpace scopes the fingerprint registry to one embedding space (mode, model and
// dimension). Postings registered under another space are not known to this one.
func (r *Repo) WithSpace(space string) *Repo {
	r.space = space
	return r
}

// Dimension returns the configured vector dimension.
func (r *Repo) Dimension() int { return r.dimension }

// Ping checks store connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	return nil
}

// EnsureIndex creates the vector index if absent. An existing index with a
// different dimension is reported as ErrDimensionMismatch.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if r.dimension <= 0 {
		return nil
	}

	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName(), err)
	}
	if exists {
		return r.checkDimension(ctx)
	}

	def, err := buildIndex(r.indexName(), r.jobPrefix(), r.dimension, r.hnsw)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return r.checkDimension(ctx)
		}
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

// IndexDimension returns the dimension of the existing index, 0 if there is none.
func (r *Repo) IndexDimension(ctx context.Context) (int, error) {
	info, err := r.store.IndexInfo(ctx, r.indexName())
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("index info %s: %w", r.indexName(), err)
	}
	return info.VectorDim, nil
}

func (r *Repo) checkDimension(ctx context.Context) error {
	dim, err := r.IndexDimension(ctx)
	if err != nil {
		return err
	}
	if dim != 0 && dim != r.dimension {
		return fmt.Errorf("%w: index %s has %d, deployment uses %d",
			domain.ErrDimensionMismatch, r.indexName(), dim, r.dimension)
	}
	return nil
}

// Upsert stores postings and registers their fingerprints. Postings must already carry
// embeddings when the deployment stores vectors.
func (r *Repo) Upsert(ctx context.Context, postings []job.Posting) error {
	return r.upsert(ctx, postings, true)
}

// UpsertProvisional stores postings without registering their fingerprints, so the
// next run embeds them again. Used for vectors from a substitute model.
func (r *Repo) UpsertProvisional(ctx context.Context, postings []job.Posting) error {
	return r.upsert(ctx, postings, false)
}

func (r *Repo) upsert(ctx context.Context, postings []job.Posting, register bool) error {
	if len(postings) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(postings))
	marks := make([]db.KVItem, len(postings))
	for i := range postings {
		p := &postings[i]
		if r.dimension > 0 {
			if err := domain.CheckDimension(p.Embedding(), r.dimension); err != nil {
				return fmt.Errorf("upsert %s: %w", p.ID(), err)
			}
		}
		fields, err := buildHashFields(p)
		if err != nil {
			return err
		}
		items[i] = db.HashSetItem{Key: r.jobKey(p.ID()), Fields: fields}
		marks[i] = db.KVItem{Key: r.fingerprintKey(p.Fingerprint()), Value: []byte(p.ID())}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert postings: %w", err)
	}
	if !register {
		return nil
	}
	// Fingerprints are registered only once the postings exist.
	if err := r.store.SetMulti(ctx, marks); err != nil {
		return fmt.Errorf("register fingerprints: %w", err)
	}
	return nil
}

// KnownFingerprints returns the subset of fps already indexed.
func (r *Repo) KnownFingerprints(ctx context.Context, fps []string) (map[string]bool, error) {
	if len(fps) == 0 {
		return map[string]bool{}, nil
	}
	keys := make([]string, len(fps))
	for i, fp := range fps {
		keys[i] = r.fingerprintKey(fp)
	}
	exists, err := r.store.ExistsMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("lookup fingerprints: %w", err)
	}
	known := make(map[string]bool)
	for i, ok := range exists {
		if ok {
			known[fps[i]] = true
		}
	}
	return known, nil
}

// Query returns the topK nearest postings by cosine similarity, best first.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int) ([]result.Hit, error) {
	if r.dimension <= 0 {
		return nil, fmt.Errorf("vector query on a store without vectors")
	}
	if err := domain.CheckDimension(vector, r.dimension); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := make([]result.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		p, err := parseHashFields(e.Fields)
		if err != nil {
			continue
		}
		hits = append(hits, result.Hit{Posting: p, Score: e.Score})
	}
	return hits, nil
}

// All returns every stored posting ordered by id.
func (r *Repo) All(ctx context.Context) ([]job.Posting, error) {
	keys, err := r.store.Scan(ctx, r.jobPrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("scan postings: %w", err)
	}
	sort.Strings(keys)

	out := make([]job.Posting, 0, len(keys))
	for start := 0; start < len(keys); start += readBatch {
		end := min(start+readBatch, len(keys))
		maps, err := r.store.HGetAllMulti(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("load postings: %w", err)
		}
		for _, m := range maps {
			if len(m) == 0 {
				continue // deleted between SCAN and HGETALL
			}
			p, err := parseHashFields(m)
			if err != nil {
				continue
			}
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Stats reports the corpus size and the dimension of the vector index.
func (r *Repo) Stats(ctx context.Context) (Stats, error) {
	if r.dimension <= 0 {
		keys, err := r.store.Scan(ctx, r.jobPrefix()+"*")
		if err != nil {
			return Stats{}, fmt.Errorf("count postings: %w", err)
		}
		return Stats{Count: len(keys)}, nil
	}

	info, err := r.store.IndexInfo(ctx, r.indexName())
	if err != nil {
		return Stats{}, fmt.Errorf("index info %s: %w", r.indexName(), err)
	}
	return Stats{Count: info.NumDocs, Dimension: info.VectorDim}, nil
}

func (r *Repo) indexName() string { return r.prefix + "jobs:idx" }

func (r *Repo) jobPrefix() string { return r.prefix + "job:" }

func (r *Repo) jobKey(id string) string { return r.jobPrefix() + id }

func (r *Repo) fingerprintKey(fp string) string {
	if r.space == "" {
		return r.prefix + "fp:" + fp
	}
	return r.prefix + "fp:" + r.space + ":" + fp
}
