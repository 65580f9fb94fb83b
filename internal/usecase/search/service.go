package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
	"github.com/kailas-cloud/jobdex/internal/metrics"
)

// Defaults for candidate sizing, boosts and reranking.
const (
	DefaultOversampling        = 8
	DefaultMinCandidates       = 50
	DefaultMaxCandidates       = 100
	DefaultPreferredSkillBoost = 0.1
	DefaultMaxPreferredBoost   = 0.3
	DefaultRerankCandidates    = 50
)

// Config tunes the ranking pipeline.
type Config struct {
	Mode             mode.Mode
	Oversampling     int
	MinCandidates    int
	MaxCandidates    int
	Boost            Boost
	RerankCandidates int
}

func (c *Config) applyDefaults() {
	if c.Oversampling <= 0 {
		c.Oversampling = DefaultOversampling
	}
	if c.MinCandidates <= 0 {
		c.MinCandidates = DefaultMinCandidates
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
	if c.MaxCandidates < c.MinCandidates {
		c.MaxCandidates = c.MinCandidates
	}
	if c.RerankCandidates <= 0 {
		c.RerankCandidates = DefaultRerankCandidates
	}
}

// Response is the outcome of one search.
type Response struct {
	Results             []result.Result
	Cached              bool
	Reranked            bool
	CandidatesRetrieved int
}

// Service runs cache lookup, retrieval, filters and boost, optional rerank, truncation
// and cache store. The retriever and reranker are fixed at construction.
type Service struct {
	cfg       Config
	retriever Retriever
	cache     Cache
	reranker  domain.Reranker
	logger    *zap.Logger
}

// New creates a search service. cache may be nil.
func New(cfg Config, retriever Retriever, cache Cache, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, retriever: retriever, cache: cache, logger: logger}
}

// WithReranker enables second-stage reranking. Ignored in lightweight mode.
func (s *Service) WithReranker(r domain.Reranker) *Service {
	if !s.cfg.Mode.UsesEmbeddings() {
		s.logger.Info("Reranking is not available in lightweight mode")
		return s
	}
	s.reranker = r
	return s
}

// Reranks reports whether a reranker is wired.
func (s *Service) Reranks() bool { return s.reranker != nil }

// CandidateCount returns how many candidates the first stage is asked for.
func (s *Service) CandidateCount(maxResults int) int {
	k := maxResults * s.cfg.Oversampling
	k = min(max(k, s.cfg.MinCandidates), s.cfg.MaxCandidates)
	return max(k, maxResults)
}

// Search runs the ranking pipeline. An empty result means no matches.
func (s *Service) Search(ctx context.Context, q *query.Query) (Response, error) {
	modeLabel := string(s.cfg.Mode)
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(modeLabel).Observe(time.Since(start).Seconds())
	}()

	if q.MaxResults() == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "ok").Inc()
		return Response{Results: []result.Result{}}, nil
	}

	var key string
	if s.cache != nil {
		key = s.cache.Key(q, s.cfg.Mode)
		if e, ok := s.cache.Get(ctx, key); ok {
			domain.UsageFromContext(ctx).MarkCacheHit()
			metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "cached").Inc()
			return Response{
				Results:             e.Results,
				Cached:              true,
				Reranked:            e.Reranked,
				CandidatesRetrieved: e.Candidates,
			}, nil
		}
	}

	hits, err := s.retriever.Retrieve(ctx, q, s.CandidateCount(q.MaxResults()))
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "error").Inc()
		return Response{}, err
	}
	metrics.SearchCandidates.WithLabelValues(modeLabel).Observe(float64(len(hits)))

	cands := filterAndBoost(q, hits, s.cfg.Boost)
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	for i := range cands {
		cands[i].cross = cands[i].score
	}

	reranked, cacheable := false, true
	if s.reranker != nil && len(cands) > 0 {
		if err := s.rerank(ctx, q, cands); err != nil {
			metrics.RerankFailuresTotal.Inc()
			s.logger.Warn("Rerank failed, serving vector order",
				zap.Int("candidates", len(cands)),
				zap.Error(err),
			)
			cacheable = false
		} else {
			reranked = true
		}
	}

	results := rank(cands, q.MaxResults())
	resp := Response{Results: results, Reranked: reranked, CandidatesRetrieved: len(hits)}

	if s.cache != nil && cacheable {
		s.cache.Set(ctx, key, result.Set{Results: results, Reranked: reranked, Candidates: len(hits)})
	}

	metrics.SearchRequestsTotal.WithLabelValues(modeLabel, "ok").Inc()
	return resp, nil
}

// rerank rescores the head of cands in place and reorders it by cross score.
// On error cands is left untouched.
func (s *Service) rerank(ctx context.Context, q *query.Query, cands []candidate) error {
	head := cands[:min(len(cands), s.cfg.RerankCandidates)]

	docs := make([]string, len(head))
	for i := range head {
		docs[i] = head[i].posting.Text()
	}

	scores, err := s.reranker.Score(ctx, q.Text(), docs)
	if err != nil {
		if errors.Is(err, domain.ErrRerankUnavailable) {
			return err
		}
		return domain.Wrap(domain.ErrRerankUnavailable, err)
	}
	if len(scores) != len(head) {
		return fmt.Errorf("%w: got %d scores for %d candidates", domain.ErrRerankUnavailable, len(scores), len(head))
	}

	for i := range head {
		head[i].cross = scores[i]
	}
	sort.SliceStable(head, func(i, j int) bool { return head[i].cross > head[j].cross })
	return nil
}

func rank(cands []candidate, maxResults int) []result.Result {
	n := min(len(cands), maxResults)
	out := make([]result.Result, n)
	for i := range n {
		p := cands[i].posting
		out[i] = result.New(p.ID(), p.Source(), p.Text(), p.Metadata(), cands[i].score, cands[i].cross, i+1)
	}
	return out
}
