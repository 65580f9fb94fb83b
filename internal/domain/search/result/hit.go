package result

import "github.com/kailas-cloud/jobdex/internal/domain/job"

// Hit is a first-stage retrieval candidate with its similarity score.
type Hit struct {
	Posting job.Posting
	Score   float64
}
