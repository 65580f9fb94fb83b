package jobs

import (
	"context"
	"testing"

	"github.com/kailas-cloud/jobdex/internal/db"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn         func(ctx context.Context) error
	hsetMultiFn    func(ctx context.Context, items []db.HashSetItem) error
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
	setMultiFn     func(ctx context.Context, items []db.KVItem) error
	existsMultiFn  func(ctx context.Context, keys []string) ([]bool, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	indexInfoFn    func(ctx context.Context, name string) (*db.IndexInfo, error)
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) SetMulti(ctx context.Context, items []db.KVItem) error {
	if m.setMultiFn != nil {
		return m.setMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) ExistsMulti(ctx context.Context, keys []string) ([]bool, error) {
	if m.existsMultiFn != nil {
		return m.existsMultiFn(ctx, keys)
	}
	return make([]bool, len(keys)), nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error) {
	if m.indexInfoFn != nil {
		return m.indexInfoFn(ctx, name)
	}
	return &db.IndexInfo{}, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T, dim int) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "jobdex:", dim), ms
}

func testPosting(t *testing.T, nativeID, title string, vec []float32) job.Posting {
	t.Helper()
	p, err := job.New(job.HackerNews, job.RawPosting{
		NativeID:    nativeID,
		Title:       title,
		Location:    "Remote",
		Description: "Work on distributed systems in a small team.",
	})
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return p.WithEmbedding(vec)
}
