package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
	"github.com/kailas-cloud/jobdex/internal/metrics"
)

func newVectorService(t *testing.T, idx *mockIndex, c Cache) (*Service, *mockEmbedder) {
	t.Helper()
	emb := &mockEmbedder{vec: []float32{1, 0}}
	r := NewVectorRetriever(emb, idx).WithBackoff(time.Millisecond)
	return New(mlConfig(), r, c, nil), emb
}

func TestCandidateCount(t *testing.T) {
	s := New(mlConfig(), nil, nil, nil)
	tests := []struct{ max, want int }{
		{1, 50},
		{10, 80},
		{12, 96},
		{20, 100},
		{50, 100},
	}
	for _, tc := range tests {
		if got := s.CandidateCount(tc.max); got != tc.want {
			t.Errorf("CandidateCount(%d) = %d, want %d", tc.max, got, tc.want)
		}
	}

	small := New(Config{Mode: mode.Local, Oversampling: 1, MinCandidates: 5, MaxCandidates: 10}, nil, nil, nil)
	if got := small.CandidateCount(30); got != 30 {
		t.Errorf("CandidateCount never goes below max_results, got %d", got)
	}
}

func TestSearch_MaxResultsZero(t *testing.T) {
	idx := &mockIndex{}
	c := newMemCache()
	s, emb := newVectorService(t, idx, c)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "go", MaxResults: intPtr(0)}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %v", resp.Results)
	}
	if emb.calls+idx.calls+c.gets+c.sets != 0 {
		t.Error("max_results=0 must not touch embedder, index or cache")
	}
}

func TestSearch_VectorOrderAndRanks(t *testing.T) {
	a := posting(t, "1", "Go engineer", "Remote", "")
	b := posting(t, "2", "Rust engineer", "Berlin", "")
	idx := &mockIndex{hits: []result.Hit{hit(a, 0.9), hit(b, 0.8)}}
	s, _ := newVectorService(t, idx, nil)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "engineer"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(resp.Results), ","); got != "hn_1,hn_2" {
		t.Fatalf("order = %s", got)
	}
	for i, r := range resp.Results {
		if r.Rank() != i+1 {
			t.Errorf("rank[%d] = %d", i, r.Rank())
		}
		if r.CrossScore() != r.VectorScore() {
			t.Errorf("cross score must equal vector score without rerank")
		}
	}
	if resp.CandidatesRetrieved != 2 || resp.Reranked || resp.Cached {
		t.Errorf("resp = %+v", resp)
	}
	if idx.lastK != 80 {
		t.Errorf("k = %d, want 80", idx.lastK)
	}
}

func TestSearch_Filters(t *testing.T) {
	pyBerlin := posting(t, "1", "Python developer", "Berlin, Germany", "Django and Postgres")
	pyIntern := posting(t, "2", "Python intern", "Berlin", "Summer internship")
	goBerlin := posting(t, "3", "Go developer", "Berlin", "")
	pyRemote := posting(t, "4", "Python developer", "Remote (US)", "")
	noLoc := posting(t, "5", "Python developer", "", "Based in Berlin office")

	idx := &mockIndex{hits: []result.Hit{
		hit(pyBerlin, 0.9), hit(pyIntern, 0.85), hit(goBerlin, 0.8), hit(pyRemote, 0.7), hit(noLoc, 0.6),
	}}
	s, _ := newVectorService(t, idx, nil)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{
		Text:            "python developer",
		Locations:       []string{"berlin"},
		RequiredSkills:  []string{"Python"},
		ExcludeKeywords: []string{"intern"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(resp.Results), ","); got != "hn_1,hn_5" {
		t.Fatalf("results = %s", got)
	}
	for _, r := range resp.Results {
		text := strings.ToLower(r.Text())
		if !strings.Contains(text, "python") || strings.Contains(text, "intern") {
			t.Errorf("%s violates filters", r.JobID())
		}
	}
}

func TestSearch_PreferredBoostCappedAndMonotonic(t *testing.T) {
	none := posting(t, "1", "Engineer", "", "")
	one := posting(t, "2", "Engineer", "", "We use AWS")
	many := posting(t, "3", "Engineer", "", "AWS, Docker, Kubernetes, Terraform")

	idx := &mockIndex{hits: []result.Hit{hit(none, 0.5), hit(one, 0.5), hit(many, 0.5)}}
	s, _ := newVectorService(t, idx, nil)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{
		Text:            "engineer",
		PreferredSkills: []string{"aws", "docker", "kubernetes", "terraform"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(resp.Results), ","); got != "hn_3,hn_2,hn_1" {
		t.Fatalf("order = %s", got)
	}
	scores := map[string]float64{}
	for _, r := range resp.Results {
		scores[r.JobID()] = r.VectorScore()
	}
	if d := scores["hn_3"] - 0.5; d < 0.3-1e-9 || d > 0.3+1e-9 {
		t.Errorf("capped boost = %f, want 0.3", d)
	}
	if d := scores["hn_2"] - 0.5; d < 0.1-1e-9 || d > 0.1+1e-9 {
		t.Errorf("single boost = %f, want 0.1", d)
	}
}

func TestSearch_TiesKeepRetrievalOrder(t *testing.T) {
	var hits []result.Hit
	for _, id := range []string{"c", "a", "b"} {
		hits = append(hits, hit(posting(t, id, "Engineer", "", ""), 0.5))
	}
	s, _ := newVectorService(t, &mockIndex{hits: hits}, nil)

	resp, _ := s.Search(context.Background(), mustQuery(t, query.Params{Text: "engineer"}))
	if got := strings.Join(ids(resp.Results), ","); got != "hn_c,hn_a,hn_b" {
		t.Errorf("order = %s", got)
	}
}

func TestSearch_Truncates(t *testing.T) {
	var hits []result.Hit
	for _, id := range []string{"1", "2", "3", "4"} {
		hits = append(hits, hit(posting(t, id, "Engineer", "", ""), 0.5))
	}
	s, _ := newVectorService(t, &mockIndex{hits: hits}, nil)

	resp, _ := s.Search(context.Background(), mustQuery(t, query.Params{Text: "engineer", MaxResults: intPtr(2)}))
	if len(resp.Results) != 2 || resp.CandidatesRetrieved != 4 {
		t.Errorf("results = %d, candidates = %d", len(resp.Results), resp.CandidatesRetrieved)
	}
}

func TestSearch_CacheHitReturnsVerbatim(t *testing.T) {
	a := posting(t, "1", "Go engineer", "", "")
	idx := &mockIndex{hits: []result.Hit{hit(a, 0.9)}}
	c := newMemCache()
	s, emb := newVectorService(t, idx, c)
	q := mustQuery(t, query.Params{Text: "go engineer"})

	first, err := s.Search(context.Background(), q)
	if err != nil || first.Cached {
		t.Fatalf("first = %+v, err = %v", first, err)
	}

	idx.hits = nil // would produce an empty result if the pipeline ran again
	ctx, usage := domain.NewContextWithUsage(context.Background())
	second, err := s.Search(ctx, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached || len(second.Results) != 1 || second.CandidatesRetrieved != 1 {
		t.Errorf("second = %+v", second)
	}
	if emb.calls != 1 || idx.calls != 1 {
		t.Errorf("cache hit must skip the pipeline: embed=%d query=%d", emb.calls, idx.calls)
	}
	if !usage.CacheHit {
		t.Error("usage should record cache hit")
	}
}

func TestSearch_EmptyResultIsCachedAsNoMatches(t *testing.T) {
	c := newMemCache()
	s, _ := newVectorService(t, &mockIndex{}, c)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "cobol"}))
	if err != nil || len(resp.Results) != 0 {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}
	if c.sets != 1 {
		t.Errorf("sets = %d, want 1", c.sets)
	}
}

func TestSearch_EmbeddingFailureFailsRequest(t *testing.T) {
	idx := &mockIndex{}
	c := newMemCache()
	emb := &mockEmbedder{err: domain.Wrap(domain.ErrEmbeddingUnavailable, errors.New("HuggingFace API timeout"))}
	s := New(mlConfig(), NewVectorRetriever(emb, idx), c, nil)

	_, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "go"}))
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "HuggingFace API timeout") {
		t.Errorf("raw upstream message lost: %v", err)
	}
	if idx.calls != 0 || c.sets != 0 {
		t.Error("no retrieval and no cache write after an embedding failure")
	}
}

func TestSearch_RetrySucceedsOnSecondTry(t *testing.T) {
	a := posting(t, "1", "Go engineer", "", "")
	idx := &mockIndex{hits: []result.Hit{hit(a, 0.9)}, errs: []error{errors.New("READONLY")}}
	s, _ := newVectorService(t, idx, nil)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "go"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.calls != 2 || len(resp.Results) != 1 {
		t.Errorf("calls = %d, results = %d", idx.calls, len(resp.Results))
	}
}

func TestSearch_RetryBoundedAtTwoTries(t *testing.T) {
	idx := &mockIndex{errs: []error{errors.New("connection refused"), errors.New("connection refused"), nil}}
	c := newMemCache()
	s, _ := newVectorService(t, idx, c)

	_, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "go"}))
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("raw store error lost: %v", err)
	}
	if idx.calls != 2 {
		t.Errorf("calls = %d, want 2", idx.calls)
	}
	if c.sets != 0 {
		t.Error("failed search must not be cached")
	}
}

func TestSearch_ContextErrorNotRetried(t *testing.T) {
	idx := &mockIndex{errs: []error{context.DeadlineExceeded}}
	s, _ := newVectorService(t, idx, nil)

	_, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "go"}))
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if idx.calls != 1 {
		t.Errorf("calls = %d, want 1", idx.calls)
	}
}

func TestSearch_Rerank(t *testing.T) {
	a := posting(t, "a", "Go engineer", "", "")
	b := posting(t, "b", "Senior Go engineer", "", "")
	idx := &mockIndex{hits: []result.Hit{hit(a, 0.9), hit(b, 0.8)}}
	c := newMemCache()
	s, _ := newVectorService(t, idx, c)
	rr := &mockReranker{scores: func(docs []string) []float64 {
		out := make([]float64, len(docs))
		for i, d := range docs {
			if strings.Contains(d, "Senior") {
				out[i] = 0.99
			} else {
				out[i] = 0.1
			}
		}
		return out
	}}
	s.WithReranker(rr)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "senior go"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(resp.Results), ","); got != "hn_b,hn_a" {
		t.Fatalf("order = %s", got)
	}
	if !resp.Reranked || resp.Results[0].CrossScore() != 0.99 || resp.Results[0].VectorScore() != 0.8 {
		t.Errorf("resp = %+v", resp.Results[0])
	}
	if c.sets != 1 {
		t.Error("reranked result should be cached")
	}
}

func TestSearch_RerankLimitedToTopCandidates(t *testing.T) {
	var hits []result.Hit
	for i := range 60 {
		hits = append(hits, hit(posting(t, string(rune('A'+i%26))+strings.Repeat("x", i/26), "Engineer", "", ""), 0.5))
	}
	s, _ := newVectorService(t, &mockIndex{hits: hits}, nil)
	rr := &mockReranker{scores: func(docs []string) []float64 { return make([]float64, len(docs)) }}
	s.WithReranker(rr)

	if _, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "engineer"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.docs != DefaultRerankCandidates {
		t.Errorf("reranked %d docs, want %d", rr.docs, DefaultRerankCandidates)
	}
}

func TestSearch_RerankFailureKeepsVectorOrderAndSkipsCache(t *testing.T) {
	a := posting(t, "a", "Go engineer", "", "")
	b := posting(t, "b", "Senior Go engineer", "", "")
	idx := &mockIndex{hits: []result.Hit{hit(a, 0.9), hit(b, 0.8)}}
	c := newMemCache()
	s, _ := newVectorService(t, idx, c)
	s.WithReranker(&mockReranker{err: errors.New("503 Service Unavailable")})

	before := testutil.ToFloat64(metrics.RerankFailuresTotal)
	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "go"}))
	if err != nil {
		t.Fatalf("rerank failure must not fail the search: %v", err)
	}
	if got := strings.Join(ids(resp.Results), ","); got != "hn_a,hn_b" || resp.Reranked {
		t.Errorf("order = %s, reranked = %v", got, resp.Reranked)
	}
	if resp.Results[0].CrossScore() != resp.Results[0].VectorScore() {
		t.Error("cross score should fall back to vector score")
	}
	if c.sets != 0 {
		t.Error("degraded result must not be cached")
	}
	if testutil.ToFloat64(metrics.RerankFailuresTotal) != before+1 {
		t.Error("rerank failure counter not incremented")
	}
}

func TestWithReranker_IgnoredInLightweight(t *testing.T) {
	s := New(Config{Mode: mode.Lightweight}, NewKeywordRetriever(&mockCorpus{}), nil, nil)
	s.WithReranker(&mockReranker{})
	if s.Reranks() {
		t.Error("lightweight mode must not rerank")
	}
}

// --- Keyword retriever ---

func TestKeywordRetriever_OverlapScoring(t *testing.T) {
	corpus := &mockCorpus{postings: []job.Posting{
		posting(t, "1", "Pastry chef", "", ""),
		posting(t, "2", "Python engineer", "", ""),
		posting(t, "3", "Senior Python backend engineer", "", ""),
		posting(t, "4", "Backend engineer", "", ""),
	}}
	r := NewKeywordRetriever(corpus)

	hits, err := r.Retrieve(context.Background(), mustQuery(t, query.Params{Text: "Python backend engineer"}), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]string, len(hits))
	for i, h := range hits {
		got[i] = h.Posting.ID()
	}
	if strings.Join(got, ",") != "hn_3,hn_2,hn_4" {
		t.Fatalf("order = %v", got)
	}
	if hits[0].Score != 1 {
		t.Errorf("full overlap score = %f", hits[0].Score)
	}
}

func TestKeywordRetriever_LimitsToK(t *testing.T) {
	corpus := &mockCorpus{postings: []job.Posting{
		posting(t, "1", "Go engineer", "", ""),
		posting(t, "2", "Go engineer", "", ""),
	}}
	hits, _ := NewKeywordRetriever(corpus).Retrieve(context.Background(), mustQuery(t, query.Params{Text: "go"}), 1)
	if len(hits) != 1 || hits[0].Posting.ID() != "hn_1" {
		t.Errorf("hits = %v", hits)
	}
}

func TestKeywordRetriever_StoreError(t *testing.T) {
	corpus := &mockCorpus{err: errors.New("LOADING Redis is loading the dataset in memory")}
	r := NewKeywordRetriever(corpus).WithBackoff(time.Millisecond)

	_, err := r.Retrieve(context.Background(), mustQuery(t, query.Params{Text: "go"}), 10)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if corpus.calls != 2 {
		t.Errorf("calls = %d, want 2", corpus.calls)
	}
}

func TestSearch_LightweightEndToEnd(t *testing.T) {
	corpus := &mockCorpus{postings: []job.Posting{
		posting(t, "1", "Python engineer", "Berlin", ""),
		posting(t, "2", "Python engineer", "Paris", ""),
	}}
	c := newMemCache()
	s := New(Config{Mode: mode.Lightweight}, NewKeywordRetriever(corpus), c, nil)

	resp, err := s.Search(context.Background(), mustQuery(t, query.Params{Text: "python", Locations: []string{"paris"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(resp.Results), ","); got != "hn_2" {
		t.Errorf("results = %s", got)
	}
	if _, ok := c.entries["lightweight|python"]; !ok {
		t.Errorf("expected entry under lightweight mode, got %v", c.entries)
	}
}
