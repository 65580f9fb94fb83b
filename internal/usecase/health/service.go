package health

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Config describes the deployment being checked.
type Config struct {
	Mode         mode.Mode
	Dimension    int
	CheckTimeout time.Duration
}

type check struct {
	name string
	run  func(ctx context.Context) health.Component
}

// Service aggregates component health.
type Service struct {
	cfg       Config
	store     VectorStore
	embedding EmbeddingProber
	cache     Pinger
	reranker  RerankChecker
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Service. embedding can be nil.
func New(cfg Config, store VectorStore, embedding EmbeddingProber, logger *zap.Logger) *Service {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, store: store, embedding: embedding, logger: logger, now: time.Now}
}

// WithCache adds the optional cache component.
func (s *Service) WithCache(p Pinger) *Service {
	s.cache = p
	return s
}

// WithReranker adds the optional reranker component.
func (s *Service) WithReranker(r RerankChecker) *Service {
	s.reranker = r
	return s
}

// Check probes every component concurrently and composes the snapshot.
func (s *Service) Check(ctx context.Context) health.Snapshot {
	checks := s.checks()
	components := make([]health.Component, len(checks))

	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			components[i] = s.runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	snap := health.Snapshot{
		Mode:       string(s.cfg.Mode),
		Status:     health.Compose(components),
		Components: components,
	}
	if snap.Status != health.Healthy {
		s.logger.Warn("health degraded", zap.String("status", string(snap.Status)))
	}
	return snap
}

// Component probes a single component by name.
func (s *Service) Component(ctx context.Context, name string) (health.Component, error) {
	for _, c := range s.checks() {
		if c.name == name {
			return s.runCheck(ctx, c), nil
		}
	}
	return health.Component{}, fmt.Errorf("%w: %q", domain.ErrUnknownComponent, name)
}

func (s *Service) checks() []check {
	var out []check
	if s.embedding != nil {
		out = append(out, check{name: health.ComponentEmbedding, run: s.checkEmbedding})
	}
	out = append(out, check{name: health.ComponentVectorStore, run: s.checkVectorStore})
	if s.cache != nil {
		out = append(out, check{name: health.ComponentCache, run: s.checkCache})
	}
	if s.reranker != nil {
		out = append(out, check{name: health.ComponentReranker, run: s.checkReranker})
	}
	return out
}

func (s *Service) runCheck(ctx context.Context, c check) health.Component {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	comp := c.run(ctx)
	comp.Name = c.name
	comp.Required = s.required(c.name)
	return comp
}

// required: lightweight needs only the vector store; ML modes also need embeddings.
func (s *Service) required(name string) bool {
	switch name {
	case health.ComponentVectorStore:
		return true
	case health.ComponentEmbedding:
		return s.cfg.Mode.UsesEmbeddings()
	default:
		return false
	}
}

func (s *Service) checkEmbedding(ctx context.Context) health.Component {
	return s.embedding.Probe(ctx)
}

func (s *Service) checkVectorStore(ctx context.Context) health.Component {
	started := s.now()
	details := map[string]string{}
	finish := func(st health.Status) health.Component {
		return health.Component{Status: st, Details: details, CheckedAt: started, Latency: time.Since(started)}
	}

	if err := s.store.Ping(ctx); err != nil {
		details["error"] = err.Error()
		return finish(health.Unavailable)
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		details["stats_error"] = err.Error()
		return finish(health.Degraded)
	}
	details["documents"] = strconv.Itoa(stats.Count)

	if s.cfg.Mode.UsesEmbeddings() {
		details["dimension"] = strconv.Itoa(stats.Dimension)
		details["expected_dimension"] = strconv.Itoa(s.cfg.Dimension)
		if stats.Dimension != s.cfg.Dimension {
			details["error"] = fmt.Sprintf("%s: index has %d, deployment uses %d",
				domain.ErrDimensionMismatch, stats.Dimension, s.cfg.Dimension)
			return finish(health.Unavailable)
		}
	}
	return finish(health.Healthy)
}

func (s *Service) checkCache(ctx context.Context) health.Component {
	return s.pingComponent(ctx, s.cache.Ping)
}

func (s *Service) checkReranker(ctx context.Context) health.Component {
	return s.pingComponent(ctx, s.reranker.HealthCheck)
}

func (s *Service) pingComponent(ctx context.Context, ping func(context.Context) error) health.Component {
	started := s.now()
	comp := health.Component{Status: health.Healthy, CheckedAt: started}
	if err := ping(ctx); err != nil {
		comp.Status = health.Unavailable
		comp.Details = map[string]string{"error": err.Error()}
	}
	comp.Latency = time.Since(started)
	return comp
}
