package result

import "github.com/kailas-cloud/jobdex/internal/domain/job"

// Result is a single ranked search hit.
type Result struct {
	jobID       string
	source      job.Source
	text        string
	metadata    job.Metadata
	vectorScore float64
	crossScore  float64
	rank        int
}

// New creates a search result.
func New(
	jobID string, source job.Source, text string, metadata job.Metadata,
	vectorScore, crossScore float64, rank int,
) Result {
	return Result{
		jobID: jobID, source: source, text: text, metadata: metadata,
		vectorScore: vectorScore, crossScore: crossScore, rank: rank,
	}
}

// JobID returns the posting identifier.
func (r *Result) JobID() string { return r.jobID }

// Source returns the originating source.
func (r *Result) Source() job.Source { return r.source }

// Text returns the posting text.
func (r *Result) Text() string { return r.text }

// Metadata returns the posting metadata.
func (r *Result) Metadata() job.Metadata { return r.metadata }

// VectorScore returns the first-stage score (after preferred-skill boost).
func (r *Result) VectorScore() float64 { return r.vectorScore }

// CrossScore returns the rerank score; equals VectorScore when no rerank ran.
func (r *Result) CrossScore() float64 { return r.crossScore }

// Rank returns the 1-based position.
func (r *Result) Rank() int { return r.rank }

// Set is a ranked result list together with how it was produced.
type Set struct {
	Results    []Result
	Reranked   bool
	Candidates int
}
