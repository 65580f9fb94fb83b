package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/config"
	"github.com/kailas-cloud/jobdex/internal/db/redis"
	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/metrics"
	"github.com/kailas-cloud/jobdex/internal/model/hashing"
	"github.com/kailas-cloud/jobdex/internal/repository/embcache"
	"github.com/kailas-cloud/jobdex/internal/repository/jobs"
	"github.com/kailas-cloud/jobdex/internal/repository/searchcache"
	"github.com/kailas-cloud/jobdex/internal/rerank"
	"github.com/kailas-cloud/jobdex/internal/source"
	openaiEmb "github.com/kailas-cloud/jobdex/internal/transport/openai"
	"github.com/kailas-cloud/jobdex/internal/transport/tei"
	embeddinguc "github.com/kailas-cloud/jobdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/jobdex/internal/usecase/health"
	ingestionuc "github.com/kailas-cloud/jobdex/internal/usecase/ingestion"
	searchuc "github.com/kailas-cloud/jobdex/internal/usecase/search"
)

// app is the composition root shared by serve and ingest.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	limits    query.Limits
	search    *searchuc.Service
	ingestion *ingestionuc.Service
	health    *healthuc.Service
	closers   []func()
}

// Close releases stores in reverse order and flushes the logger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		limits: query.Limits{Default: cfg.Search.DefaultMaxResults, Ceiling: cfg.Search.MaxResultsCeiling},
	}
	m := cfg.ParsedMode()

	store, err := redis.NewStore(redis.Config{
		Addrs:       cfg.Database.Addrs,
		Username:    cfg.Database.Username,
		Password:    cfg.Database.Password,
		DB:          cfg.Database.DB,
		DialTimeout: time.Duration(cfg.Database.DialTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	// Wait for database to be ready
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		a.Close()
		return nil, fmt.Errorf("vector store not ready: %w", err)
	}
	logger.Info("Connected to vector store")

	cacheStore := store
	if len(cfg.Cache.Addrs) > 0 {
		cacheStore, err = redis.NewStore(redis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create cache store: %w", err)
		}
		a.closers = append(a.closers, cacheStore.Close)
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterIngestionMetrics()

	provider, err := buildProvider(cfg, m, cacheStore, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Embedding provider created",
		zap.String("mode", string(provider.Mode())),
		zap.Int("dimensions", provider.Dimension()),
	)

	prefix := cfg.Storage.KeyPrefix
	jobRepo := jobs.New(store, prefix, provider.Dimension()).WithHNSW(jobs.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	}).WithSpace(embeddingSpace(cfg, m))
	if err := jobRepo.EnsureIndex(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure index: %w", err)
	}

	cache := searchcache.New(cacheStore, prefix, time.Duration(cfg.Cache.TTLSec)*time.Second,
		metrics.SearchCacheTotal, logger).
		WithTimeout(time.Duration(cfg.Cache.TimeoutMs) * time.Millisecond)

	backoff := time.Duration(cfg.Search.RetryBackoffMs) * time.Millisecond
	var retriever searchuc.Retriever
	if m.UsesEmbeddings() {
		retriever = searchuc.NewVectorRetriever(provider, jobRepo).WithBackoff(backoff)
	} else {
		retriever = searchuc.NewKeywordRetriever(jobRepo).WithBackoff(backoff)
	}

	a.search = searchuc.New(searchuc.Config{
		Mode:          m,
		Oversampling:  cfg.Search.OversamplingFactor,
		MinCandidates: cfg.Search.MinCandidates,
		MaxCandidates: cfg.Search.MaxCandidates,
		Boost: searchuc.Boost{
			PerSkill: cfg.Search.PreferredSkillBoost,
			Max:      cfg.Search.MaxPreferredBoost,
		},
		RerankCandidates: cfg.Search.Rerank.Candidates,
	}, retriever, cache, logger)

	a.health = healthuc.New(healthuc.Config{
		Mode:         m,
		Dimension:    provider.Dimension(),
		CheckTimeout: time.Duration(cfg.Health.CheckTimeoutMs) * time.Millisecond,
	}, jobRepo, provider, logger).WithCache(cache)

	if reranker := buildReranker(cfg, m, logger); reranker != nil {
		a.search.WithReranker(reranker)
		a.health.WithReranker(reranker)
	}

	sources, err := buildSources(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var ingestEmbedder ingestionuc.Embedder
	if m.UsesEmbeddings() {
		ingestEmbedder = provider
	}
	a.ingestion = ingestionuc.New(ingestionuc.Config{
		FetchConcurrency: cfg.Ingestion.FetchConcurrency,
		FetchTimeout:     time.Duration(cfg.Ingestion.FetchTimeoutSec) * time.Second,
		MinTextLength:    cfg.Ingestion.MinTextLength,
		ExcludeKeywords:  cfg.Ingestion.ExcludeKeywords,
		MaxLinks:         cfg.Ingestion.MaxLinks,
		BatchSize:        cfg.Embedding.BatchSize,
		EmbedConcurrency: cfg.Embedding.Concurrency,
		IngestFallback:   cfg.IngestFallback(),
	}, sources, jobRepo, ingestEmbedder, logger)

	return a, nil
}

// buildProvider assembles the mode-specific embedding chain:
// model -> (cache) -> instrumented -> provider.
func buildProvider(
	cfg *config.Config, m mode.Mode, cacheStore *redis.Store, logger *zap.Logger,
) (embeddinguc.Provider, error) {
	if !m.UsesEmbeddings() {
		return embeddinguc.NewLightweight(), nil
	}

	dim := cfg.Embedding.Dimensions
	localModel, err := hashing.New(dim)
	if err != nil {
		return nil, fmt.Errorf("create local model: %w", err)
	}
	localModel.WithMaxInputBytes(cfg.Embedding.MaxInputBytes)

	if m == mode.Local {
		local := embeddinguc.NewInstrumentedEmbedder(localModel, "local", hashing.Name, logger).WithMetrics()
		p, err := embeddinguc.NewLocal(local, hashing.Name, dim)
		if err != nil {
			return nil, fmt.Errorf("create local provider: %w", err)
		}
		return p, nil
	}

	cloudCfg := cfg.Embedding.Cloud
	var remote domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cloudCfg.APIKey,
		BaseURL:    cloudCfg.BaseURL,
		Model:      cloudCfg.Model,
		Dimensions: dim,
		Provider:   cloudCfg.Provider,
		Timeout:    time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond,
		HTTPClient: &http.Client{},
		Logger:     logger,
	})
	if cfg.Cache.EmbeddingTTLHours > 0 {
		remote = embcache.New(remote, cacheStore, cfg.Storage.KeyPrefix, cloudCfg.Model,
			metrics.EmbeddingCacheTotal, logger).
			WithTTL(time.Duration(cfg.Cache.EmbeddingTTLHours) * time.Hour)
	}
	remote = embcache.NewLRU(remote, cloudCfg.Model, cfg.Cache.EmbeddingLRUSize,
		time.Duration(cfg.Cache.EmbeddingLRUTTLSec)*time.Second, metrics.EmbeddingCacheTotal)
	// The OpenAI transport records its own request metrics.
	remote = embeddinguc.NewInstrumentedEmbedder(remote, cloudCfg.Provider, cloudCfg.Model, logger)

	p, err := embeddinguc.NewCloud(embeddinguc.CloudConfig{
		Remote:      remote,
		RemoteModel: cloudCfg.Model,
		Local:       embeddinguc.NewInstrumentedEmbedder(localModel, "local", hashing.Name, logger).WithMetrics(),
		LocalName:   hashing.Name,
		Dimension:   dim,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create cloud provider: %w", err)
	}
	return p, nil
}

// embeddingSpace names the vector space postings are stored in. Switching mode, model
// or dimension on the same prefix makes existing postings unknown, so they are re-embedded.
func embeddingSpace(cfg *config.Config, m mode.Mode) string {
	switch m {
	case mode.Cloud:
		return fmt.Sprintf("%s.%s.%d", m, cfg.Embedding.Cloud.Model, cfg.Embedding.Dimensions)
	case mode.Local:
		return fmt.Sprintf("%s.%s.%d", m, hashing.Name, cfg.Embedding.Dimensions)
	default:
		return string(m)
	}
}

// reranker is what search and health both need from the cross-encoder.
type reranker interface {
	domain.Reranker
	HealthCheck(ctx context.Context) error
}

func buildReranker(cfg *config.Config, m mode.Mode, logger *zap.Logger) reranker {
	rc := cfg.Search.Rerank
	if !rc.Enabled || !m.UsesEmbeddings() {
		return nil
	}
	switch rc.Provider {
	case "tei":
		return tei.New(tei.Config{
			BaseURL: rc.BaseURL,
			APIKey:  rc.APIKey,
			Timeout: time.Duration(rc.TimeoutMs) * time.Millisecond,
			Logger:  logger,
		})
	default:
		return rerank.NewLexical()
	}
}

func buildSources(cfg *config.Config, logger *zap.Logger) ([]ingestionuc.Source, error) {
	fetcher := source.NewFetcher(&http.Client{}, cfg.Ingestion.UserAgent,
		time.Duration(cfg.Ingestion.FetchTimeoutSec)*time.Second)

	sources := make([]ingestionuc.Source, 0, len(cfg.Ingestion.Sources))
	for _, sc := range cfg.Ingestion.Sources {
		name, err := job.ParseSource(sc.Name)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		adapter, err := source.New(name, sc.URL, fetcher)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		if hn, ok := adapter.(*source.HackerNews); ok {
			hn.WithMaxPages(cfg.Ingestion.HNMaxPages)
		}
		sources = append(sources, adapter)
	}
	logger.Info("Sources configured", zap.Int("count", len(sources)))
	return sources, nil
}
