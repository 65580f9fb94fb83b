// Package hashing is the in-process embedding model used by local mode and as the
// cloud fallback. Text is tokenized into unigrams and bigrams which are projected
// onto a fixed number of dimensions with signed feature hashing.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/jobdex/internal/domain"
)

const (
	// DefaultDimension matches the remote small BGE models so both paths share an index.
	DefaultDimension = 384
	// DefaultMaxInputBytes is the largest text the model accepts.
	DefaultMaxInputBytes = 32 * 1024
	// Name identifies the model in logs, metrics and cache keys.
	Name = "hashing-v1"
)

// Model is a deterministic, dependency-free text encoder.
type Model struct {
	dim      int
	maxBytes int
}

// New creates a model producing vectors of length dim.
func New(dim int) (*Model, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hashing model: dimension must be positive, got %d", dim)
	}
	return &Model{dim: dim, maxBytes: DefaultMaxInputBytes}, nil
}

// WithMaxInputBytes overrides the input size ceiling.
func (m *Model) WithMaxInputBytes(n int) *Model {
	if n > 0 {
		m.maxBytes = n
	}
	return m
}

// Dimension returns the output vector length.
func (m *Model) Dimension() int { return m.dim }

// Embed implements domain.Embedder.
func (m *Model) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("hashing embed: %w", err)
	}
	vec, tokens, err := m.encode(text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: tokens, TotalTokens: tokens}, nil
}

// BatchEmbed implements domain.BatchEmbedder. One malformed text fails the whole batch.
func (m *Model) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("hashing batch embed: %w", err)
		}
		vec, tokens, err := m.encode(text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("text [%d]: %w", i, err)
		}
		out.Embeddings[i] = vec
		out.PromptTokens += tokens
		out.TotalTokens += tokens
	}
	return out, nil
}

// HealthCheck implements domain.HealthChecker by encoding a fixed probe text.
func (m *Model) HealthCheck(_ context.Context) error {
	vec, _, err := m.encode("health probe")
	if err != nil {
		return err
	}
	return domain.CheckDimension(vec, m.dim)
}

func (m *Model) encode(text string) ([]float32, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, fmt.Errorf("%w: empty text", domain.ErrEmbeddingMalformedInput)
	}
	if len(text) > m.maxBytes {
		return nil, 0, fmt.Errorf("%w: text is %d bytes, limit %d",
			domain.ErrEmbeddingMalformedInput, len(text), m.maxBytes)
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, 0, fmt.Errorf("%w: no tokens in text", domain.ErrEmbeddingMalformedInput)
	}

	tf := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}

	acc := make([]float64, m.dim)
	for feature, count := range tf {
		idx, sign := m.bucket(feature)
		acc[idx] += sign * (1 + math.Log(float64(count)))
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, m.dim)
	if norm == 0 {
		return vec, len(tokens), nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, len(tokens), nil
}

func (m *Model) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(m.dim)), sign //nolint:gosec // modulo result fits int
}

// Tokenize lower-cases text and splits it into word tokens. '+', '#' and '.' inside a
// word are kept so that terms like c++, c# and node.js survive.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		tok := strings.TrimRight(b.String(), ".")
		if tok != "" {
			tokens = append(tokens, tok)
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '+' || r == '#' || r == '.') && b.Len() > 0:
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
