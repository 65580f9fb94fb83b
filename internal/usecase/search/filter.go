package search

import (
	"strings"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/search/query"
	"github.com/kailas-cloud/jobdex/internal/domain/search/result"
)

// candidate is a hit going through filters, boost and rerank.
type candidate struct {
	posting job.Posting
	score   float64 // boosted first-stage score
	cross   float64
}

// Boost configures the preferred-skill score bonus.
type Boost struct {
	PerSkill float64
	Max      float64
}

// filterAndBoost applies, in order: locations (any), required skills (all), exclude
// keywords (none), then the capped preferred-skill boost. Retrieval order is kept.
// All matching is case-insensitive substring search.
func filterAndBoost(q *query.Query, hits []result.Hit, b Boost) []candidate {
	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		text := strings.ToLower(h.Posting.Text())

		if !matchesLocation(q.Locations(), h.Posting.Metadata(), text) {
			continue
		}
		if !containsAll(text, q.RequiredSkills()) {
			continue
		}
		if containsAny(text, q.ExcludeKeywords()) {
			continue
		}

		out = append(out, candidate{
			posting: h.Posting,
			score:   h.Score + preferredBoost(text, q.PreferredSkills(), b),
		})
	}
	return out
}

// matchesLocation checks the location metadata; postings without it are matched on text.
func matchesLocation(locations []string, md job.Metadata, text string) bool {
	if len(locations) == 0 {
		return true
	}
	if loc, ok := md.Get(job.MetaLocation); ok && loc != "" {
		return containsAny(strings.ToLower(loc), locations)
	}
	return containsAny(text, locations)
}

func preferredBoost(text string, preferred []string, b Boost) float64 {
	matched := 0
	for _, s := range preferred {
		if strings.Contains(text, s) {
			matched++
		}
	}
	return min(float64(matched)*b.PerSkill, b.Max)
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
