package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
	"github.com/kailas-cloud/jobdex/internal/model/hashing"
)

// DefaultRetryBackoff is the pause before the single retry of a vector store call.
const DefaultRetryBackoff = 100 * time.Millisecond

// storeCall runs fn at most twice. Context errors are not retried.
// The final failure is ErrRetrievalUnavailable wrapping the raw store error.
func storeCall(ctx context.Context, backoff time.Duration, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Wrap(domain.ErrRetrievalUnavailable, err)
	}
	return nil
}

// VectorRetriever embeds the query and runs KNN against the vector store.
type VectorRetriever struct {
	embedder QueryEmbedder
	index    VectorIndex
	backoff  time.Duration
}

// NewVectorRetriever creates the retriever used by local and cloud modes.
func NewVectorRetriever(embedder QueryEmbedder, index VectorIndex) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, index: index, backoff: DefaultRetryBackoff}
}

// WithBackoff overrides the retry pause.
func (r *VectorRetriever) WithBackoff(d time.Duration) *VectorRetriever {
	if d > 0 {
		r.backoff = d
	}
	return r
}

// Retrieve implements Retriever. An embedding failure fails the request; there is
// no keyword degradation.
func (r *VectorRetriever) Retrieve(ctx context.Context, q *query.Query, k int) ([]result.Hit, error) {
	vec, err := r.embedder.Embed(ctx, q.Text())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	var hits []result.Hit
	err = storeCall(ctx, r.backoff, func(ctx context.Context) error {
		var qerr error
		hits, qerr = r.index.Query(ctx, vec, k)
		return qerr
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	return hits, nil
}

// KeywordRetriever scores every posting by the fraction of query terms it contains.
type KeywordRetriever struct {
	corpus  Corpus
	backoff time.Duration
}

// NewKeywordRetriever creates the retriever used by lightweight mode.
func NewKeywordRetriever(corpus Corpus) *KeywordRetriever {
	return &KeywordRetriever{corpus: corpus, backoff: DefaultRetryBackoff}
}

// WithBackoff overrides the retry pause.
func (r *KeywordRetriever) WithBackoff(d time.Duration) *KeywordRetriever {
	if d > 0 {
		r.backoff = d
	}
	return r
}

// Retrieve implements Retriever. Score is |Q ∩ D| / |Q| over distinct terms; postings
// with no overlap are not candidates. Ties keep corpus (id) order.
func (r *KeywordRetriever) Retrieve(ctx context.Context, q *query.Query, k int) ([]result.Hit, error) {
	qTerms := termSet(q.Text())
	if len(qTerms) == 0 {
		return nil, nil
	}

	var postings []job.Posting
	err := storeCall(ctx, r.backoff, func(ctx context.Context) error {
		var lerr error
		postings, lerr = r.corpus.All(ctx)
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}

	hits := make([]result.Hit, 0, len(postings))
	for _, p := range postings {
		dTerms := termSet(p.Text())
		overlap := 0
		for t := range qTerms {
			if _, ok := dTerms[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		hits = append(hits, result.Hit{Posting: p, Score: float64(overlap) / float64(len(qTerms))})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func termSet(text string) map[string]struct{} {
	tokens := hashing.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
