package searchcache

import (
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
)

// keyDTO is the canonical key material. Field order is fixed, sets arrive sorted.
type keyDTO struct {
	Text       string   `json:"q"`
	Locations  []string `json:"loc"`
	Required   []string `json:"req"`
	Preferred  []string `json:"pref"`
	Exclude    []string `json:"excl"`
	MaxResults int      `json:"max"`
	Mode       string   `json:"mode"`
}

type entryDTO struct {
	CreatedAt  time.Time   `json:"created_at"`
	Reranked   bool        `json:"reranked"`
	Candidates int         `json:"candidates"`
	Results    []resultDTO `json:"results"`
}

type resultDTO struct {
	JobID       string       `json:"job_id"`
	Source      string       `json:"source"`
	Text        string       `json:"text"`
	Metadata    job.Metadata `json:"metadata,omitempty"`
	VectorScore float64      `json:"vector_score"`
	CrossScore  float64      `json:"cross_score"`
	Rank        int          `json:"rank"`
}

func toDTO(results []result.Result) []resultDTO {
	out := make([]resultDTO, len(results))
	for i := range results {
		r := &results[i]
		out[i] = resultDTO{
			JobID:       r.JobID(),
			Source:      string(r.Source()),
			Text:        r.Text(),
			Metadata:    r.Metadata(),
			VectorScore: r.VectorScore(),
			CrossScore:  r.CrossScore(),
			Rank:        r.Rank(),
		}
	}
	return out
}

func fromDTO(in []resultDTO) []result.Result {
	out := make([]result.Result, len(in))
	for i, d := range in {
		out[i] = result.New(d.JobID, job.Source(d.Source), d.Text, d.Metadata, d.VectorScore, d.CrossScore, d.Rank)
	}
	return out
}
