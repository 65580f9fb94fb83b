package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingUnavailable signals that no embedding could be produced on the requested path.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmbeddingMalformedInput signals input the model refuses (empty or oversized).
	ErrEmbeddingMalformedInput = errors.New("embedding malformed input")
	// ErrDimensionMismatch signals a vector whose length differs from the deployment dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrRetrievalUnavailable signals a vector store failure after retries.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrRerankUnavailable signals a cross-encoder failure.
	ErrRerankUnavailable = errors.New("rerank unavailable")
	// ErrCacheUnavailable signals a cache backing store failure.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrIngestionSourceFailure signals a single source adapter failure.
	ErrIngestionSourceFailure = errors.New("ingestion source failure")
	// ErrIngestionFatal signals an ingestion run that was aborted.
	ErrIngestionFatal = errors.New("ingestion fatal")
	// ErrIngestionInProgress signals that another ingestion run is active.
	ErrIngestionInProgress = errors.New("ingestion already in progress")
	// ErrUnknownComponent signals a health lookup for a component that is not registered.
	ErrUnknownComponent = errors.New("unknown component")
)

// Wrap attaches a sentinel to an upstream error. Both stay reachable via errors.Is
// and the upstream text is kept verbatim in Error().
func Wrap(sentinel, upstream error) error {
	if upstream == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, upstream)
}
