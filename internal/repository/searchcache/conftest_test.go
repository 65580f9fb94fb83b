package searchcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/db"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
)

// memStore is an in-memory backing store for tests.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	pingErr error
	sets    int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(t *testing.T) (*Cache, *memStore, *fakeClock, *prometheus.CounterVec) {
	t.Helper()
	ms := newMemStore()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	c := New(ms, "jobdex:", 30*time.Minute, counter, zap.NewNop()).WithClock(clock.now)
	return c, ms, clock, counter
}

func mustQuery(t *testing.T, p query.Params) query.Query {
	t.Helper()
	q, err := query.New(p, query.Limits{})
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func sampleResults() []result.Result {
	md := job.Metadata{{Key: job.MetaLocation, Value: "Berlin"}}
	return []result.Result{
		result.New("an_1", job.ArbeitNow, "Position: Go dev", md, 0.91, 0.95, 1),
		result.New("hn_2", job.HackerNews, "Position: SRE", nil, 0.8, 0.7, 2),
	}
}
