package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/health"
	"github.com/kailas-cloud/jobdex/internal/domain/ingest"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/jobdex/internal/logger"
	searchuc "github.com/kailas-cloud/jobdex/internal/usecase/search"
)

const maxRequestBytes = 1 << 20

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest           = "bad_request"
	codeInvalidQuery         = "invalid_query"
	codeMalformedInput       = "malformed_input"
	codeEmbeddingUnavailable = "embedding_unavailable"
	codeRetrievalUnavailable = "retrieval_unavailable"
	codeIngestionInProgress  = "ingestion_in_progress"
	codeIngestionFatal       = "ingestion_fatal"
	codeUnknownComponent     = "unknown_component"
	codeInternal             = "internal_error"
)

// Searcher runs the ranking pipeline.
type Searcher interface {
	Search(ctx context.Context, q *query.Query) (searchuc.Response, error)
}

// Ingester runs one ingestion.
type Ingester interface {
	Run(ctx context.Context) (ingest.Summary, error)
}

// HealthReporter reports deployment health.
type HealthReporter interface {
	Check(ctx context.Context) health.Snapshot
	Component(ctx context.Context, name string) (health.Component, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the search, ingestion and health API.
type Server struct {
	search        Searcher
	ingestion     Ingester
	health        HealthReporter
	limits        query.Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. ingestion can be nil, then POST /v1/ingest is 404.
func NewServer(search Searcher, ingestion Ingester, health HealthReporter, limits query.Limits, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:    search,
		ingestion: ingestion,
		health:    health,
		limits:    limits,
		logger:    logger,
	}
	// Malformed input is matched before unavailability.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrEmbeddingMalformedInput, http.StatusBadRequest, codeMalformedInput),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, codeRetrievalUnavailable),
		sentinelHandler(domain.ErrIngestionInProgress, http.StatusConflict, codeIngestionInProgress),
		sentinelHandler(domain.ErrUnknownComponent, http.StatusNotFound, codeUnknownComponent),
	}
	return s
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query           string   `json:"query"`
	Locations       []string `json:"locations,omitempty"`
	RequiredSkills  []string `json:"required_skills,omitempty"`
	PreferredSkills []string `json:"preferred_skills,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	MaxResults      *int     `json:"max_results,omitempty"`
}

// SearchResultItem is one ranked hit.
type SearchResultItem struct {
	JobID       string       `json:"job_id"`
	Source      job.Source   `json:"source"`
	Rank        int          `json:"rank"`
	VectorScore float64      `json:"vector_score"`
	CrossScore  float64      `json:"cross_score"`
	Text        string       `json:"text"`
	Metadata    job.Metadata `json:"metadata"`
}

// SearchResponse is the POST /v1/search response.
type SearchResponse struct {
	Results             []SearchResultItem `json:"results"`
	Total               int                `json:"total"`
	Cached              bool               `json:"cached"`
	Reranked            bool               `json:"reranked"`
	CandidatesRetrieved int                `json:"candidates_retrieved"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Summary *ingest.Summary `json:"summary,omitempty"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := query.New(query.Params{
		Text:            req.Query,
		Locations:       req.Locations,
		RequiredSkills:  req.RequiredSkills,
		PreferredSkills: req.PreferredSkills,
		ExcludeKeywords: req.ExcludeKeywords,
		MaxResults:      req.MaxResults,
	}, s.limits)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, &q)
	logpkg.FromContext(ctx).Debug("search usage",
		zap.Int("embedding_tokens", usage.TotalTokens),
		zap.Bool("embedded", usage.Embedded),
		zap.Bool("cache_hit", usage.CacheHit),
	)
	if err != nil {
		s.handleDomainError(ctx, w, err)
		return
	}

	items := make([]SearchResultItem, len(resp.Results))
	for i := range resp.Results {
		items[i] = searchResultToItem(&resp.Results[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Results:             items,
		Total:               len(items),
		Cached:              resp.Cached,
		Reranked:            resp.Reranked,
		CandidatesRetrieved: resp.CandidatesRetrieved,
	})
}

// Ingest handles POST /v1/ingest. The run is not cancelled when the client goes away.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := logpkg.WithFields(context.WithoutCancel(r.Context()), s.logger, zap.String("trigger", "http"))
	sum, err := s.ingestion.Run(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrIngestionFatal) {
			logpkg.FromContext(r.Context()).Error("ingestion fatal", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Code:    codeIngestionFatal,
				Message: err.Error(),
				Summary: &sum,
			})
			return
		}
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := s.health.Check(r.Context())
	writeJSON(w, healthStatusCode(snap.Status), snap)
}

// ComponentHealth handles GET /health/{component}.
func (s *Server) ComponentHealth(w http.ResponseWriter, r *http.Request, name string) {
	c, err := s.health.Component(r.Context(), name)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, healthStatusCode(c.Status), c)
}

func healthStatusCode(st health.Status) int {
	if st == health.Unavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func searchResultToItem(r *result.Result) SearchResultItem {
	md := r.Metadata()
	if md == nil {
		md = job.Metadata{}
	}
	return SearchResultItem{
		JobID:       r.JobID(),
		Source:      r.Source(),
		Rank:        r.Rank(),
		VectorScore: r.VectorScore(),
		CrossScore:  r.CrossScore(),
		Text:        r.Text(),
		Metadata:    md,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The message is the full error text so upstream detail reaches the client.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx)
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
