// Package tei is a client for the HuggingFace text-embeddings-inference /rerank endpoint.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/domain"
)

// DefaultTimeout bounds one rerank call.
const DefaultTimeout = 5 * time.Second

// maxErrorBody is how much of a failed response body is kept in the error.
const maxErrorBody = 512

// Config holds the reranker endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Reranker implements domain.Reranker over TEI.
type Reranker struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// New creates a TEI reranker client.
func New(cfg Config) *Reranker {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  client,
		logger:  logger,
	}
}

// Score implements domain.Reranker.
func (r *Reranker) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = domain.TruncateForRerank(d)
	}

	items, err := r.post(ctx, rerankRequest{Query: query, Texts: texts, Truncate: true})
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, it := range items {
		if it.Index < 0 || it.Index >= len(docs) || seen[it.Index] {
			return nil, fmt.Errorf("%w: invalid index %d in rerank response", domain.ErrRerankUnavailable, it.Index)
		}
		seen[it.Index] = true
		scores[it.Index] = it.Score
	}
	if len(items) != len(docs) {
		return nil, fmt.Errorf("%w: got %d scores for %d texts", domain.ErrRerankUnavailable, len(items), len(docs))
	}
	return scores, nil
}

// HealthCheck scores a single fixed pair.
func (r *Reranker) HealthCheck(ctx context.Context) error {
	_, err := r.Score(ctx, "health check", []string{"health check"})
	return err
}

func (r *Reranker) post(ctx context.Context, body rerankRequest) ([]rerankItem, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: rerank API timeout: %w", domain.ErrRerankUnavailable, err)
		}
		return nil, fmt.Errorf("%w: cannot connect to rerank API: %w", domain.ErrRerankUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: rerank API error %d: %s",
			domain.ErrRerankUnavailable, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var items []rerankItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: decode rerank response: %w", domain.ErrRerankUnavailable, err)
	}

	r.logger.Debug("Rerank request completed",
		zap.Int("texts", len(body.Texts)),
		zap.Duration("duration", time.Since(start)),
	)
	return items, nil
}
