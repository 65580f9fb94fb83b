package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/db"
	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
)

// Defaults applied when the caller passes zero values.
const (
	DefaultTTL     = 30 * time.Minute
	DefaultTimeout = 200 * time.Millisecond
)

// store is the consumer interface for the cache backing store (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Entry is a cached ranked result set.
type Entry = result.Set

// Cache keys result sets by normalized query, filters, max_results and mode.
// Backing store failures never fail a search: reads become misses and writes are dropped.
type Cache struct {
	store      store
	prefix     string
	ttl        time.Duration
	timeout    time.Duration
	now        func() time.Time
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a search cache. cacheTotal carries a "result" label (hit/miss/error), passed explicitly.
func New(s store, keyPrefix string, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:      s,
		prefix:     keyPrefix + "search:",
		ttl:        ttl,
		timeout:    DefaultTimeout,
		now:        time.Now,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// WithTimeout bounds each backing store call.
func (c *Cache) WithTimeout(d time.Duration) *Cache {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithClock replaces the clock used to judge entry age.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Key derives the cache key. Two queries that differ only in filter order or
// text casing/whitespace map to the same key; different modes never share a key.
func (c *Cache) Key(q *query.Query, m mode.Mode) string {
	material, _ := json.Marshal(keyDTO{
		Text:       q.NormalizedText(),
		Locations:  q.Locations(),
		Required:   q.RequiredSkills(),
		Preferred:  q.PreferredSkills(),
		Exclude:    q.ExcludeKeywords(),
		MaxResults: q.MaxResults(),
		Mode:       string(m),
	})
	sum := sha256.Sum256(material)
	return c.prefix + string(m) + ":" + hex.EncodeToString(sum[:])
}

// Get returns the entry for key. Entries older than TTL by their own timestamp
// are absent regardless of backing store expiry.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			c.inc("miss")
			return Entry{}, false
		}
		c.inc("error")
		c.logger.Warn("Search cache read failed",
			zap.String("key", key), zap.Error(domain.Wrap(domain.ErrCacheUnavailable, err)))
		return Entry{}, false
	}

	var dto entryDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		c.inc("error")
		c.logger.Warn("Failed to parse cached search entry", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	if c.now().Sub(dto.CreatedAt) >= c.ttl {
		c.inc("miss")
		return Entry{}, false
	}

	c.inc("hit")
	return Entry{Results: fromDTO(dto.Results), Reranked: dto.Reranked, Candidates: dto.Candidates}, true
}

// Set stores entry under key in a single SET ... EX. A cancelled ctx drops the write;
// otherwise the write gets its own timeout detached from the caller's deadline.
func (c *Cache) Set(ctx context.Context, key string, e Entry) {
	if ctx.Err() != nil {
		return
	}

	data, err := json.Marshal(entryDTO{
		CreatedAt:  c.now().UTC(),
		Reranked:   e.Reranked,
		Candidates: e.Candidates,
		Results:    toDTO(e.Results),
	})
	if err != nil {
		c.logger.Warn("Failed to encode search entry", zap.String("key", key), zap.Error(err))
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	if err := c.store.SetWithTTL(wctx, key, data, c.ttl); err != nil {
		c.inc("error")
		c.logger.Warn("Search cache write failed",
			zap.String("key", key), zap.Error(domain.Wrap(domain.ErrCacheUnavailable, err)))
	}
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return domain.Wrap(domain.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
