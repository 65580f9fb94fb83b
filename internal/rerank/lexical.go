// Package rerank holds the in-process cross scorer used when no remote
// cross-encoder is configured.
package rerank

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/model/hashing"
)

const (
	termWeight   = 0.7
	phraseWeight = 0.3
)

// Lexical scores a document by how much of the query it covers: the fraction of
// distinct query terms present plus the fraction of query bigrams present in order.
// Scores are in [0, 1].
type Lexical struct{}

// NewLexical creates the lexical scorer.
func NewLexical() *Lexical { return &Lexical{} }

// Score implements domain.Reranker.
func (l *Lexical) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
	}

	qTerms, qPhrases := features(query)
	scores := make([]float64, len(docs))
	if len(qTerms) == 0 {
		return scores, nil
	}

	for i, doc := range docs {
		dTerms, dPhrases := features(domain.TruncateForRerank(doc))
		s := termWeight * coverage(qTerms, dTerms)
		if len(qPhrases) > 0 {
			s += phraseWeight * coverage(qPhrases, dPhrases)
		} else {
			s += phraseWeight * coverage(qTerms, dTerms)
		}
		scores[i] = s
	}
	return scores, nil
}

// HealthCheck implements domain.HealthChecker. The scorer has no dependencies.
func (l *Lexical) HealthCheck(_ context.Context) error { return nil }

func features(text string) (map[string]struct{}, map[string]struct{}) {
	tokens := hashing.Tokenize(text)
	terms := make(map[string]struct{}, len(tokens))
	phrases := make(map[string]struct{}, len(tokens))
	for i, tok := range tokens {
		terms[tok] = struct{}{}
		if i > 0 {
			phrases[tokens[i-1]+" "+tok] = struct{}{}
		}
	}
	return terms, phrases
}

func coverage(want, have map[string]struct{}) float64 {
	if len(want) == 0 {
		return 0
	}
	hit := 0
	for k := range want {
		if _, ok := have[k]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}
