package ingestion

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// Reasons a posting is rejected by the quality filter.
const (
	reasonTooShort = "too_short"
	reasonExcluded = "excluded_keyword"
	reasonMarked   = "marked"
	reasonLinks    = "link_dump"
)

var linkPattern = regexp.MustCompile(`https?://`)

// hnMarkers flag moderated HN comments.
var hnMarkers = []string{"[dead]", "[flagged]"}

type qualityFilter struct {
	minLength int
	exclude   []string
	maxLinks  int
}

func newQualityFilter(minLength int, exclude []string, maxLinks int) qualityFilter {
	lowered := make([]string, 0, len(exclude))
	for _, kw := range exclude {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return qualityFilter{minLength: minLength, exclude: lowered, maxLinks: maxLinks}
}

// reject returns the rejection reason, or "" when the posting passes.
func (f qualityFilter) reject(p *job.Posting) string {
	text := p.Text()
	if len(strings.TrimSpace(text)) < f.minLength {
		return reasonTooShort
	}

	lower := strings.ToLower(text)
	for _, kw := range f.exclude {
		if strings.Contains(lower, kw) {
			return reasonExcluded
		}
	}

	if p.Source() == job.HackerNews {
		for _, m := range hnMarkers {
			if strings.Contains(lower, m) {
				return reasonMarked
			}
		}
	}

	if f.maxLinks > 0 && len(linkPattern.FindAllStringIndex(lower, f.maxLinks+1)) > f.maxLinks {
		return reasonLinks
	}
	return ""
}
