package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/jobdex/internal/domain"
)

// Query parameter limits.
const (
	// MaxTextLength is the maximum allowed query text length in bytes.
	MaxTextLength     = 4096
	DefaultMaxResults = 10
	MaxResultsCeiling = 50
	// MaxFilterTerms bounds each filter set.
	MaxFilterTerms = 32
)

// Limits bounds max_results; zero fields fall back to the package defaults.
type Limits struct {
	Default int
	Ceiling int
}

// Query is a validated job search query. All filter sets are normalized:
// lower-cased, trimmed, de-duplicated and sorted.
type Query struct {
	text            string
	locations       []string
	requiredSkills  []string
	preferredSkills []string
	excludeKeywords []string
	maxResults      int
}

// Params is the raw caller input.
type Params struct {
	Text            string
	Locations       []string
	RequiredSkills  []string
	PreferredSkills []string
	ExcludeKeywords []string
	// MaxResults nil means "use the default"; an explicit 0 yields an empty result.
	MaxResults *int
}

// New validates and normalizes search parameters.
func New(p Params, lim Limits) (Query, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return Query{}, fmt.Errorf("%w: query text is required", domain.ErrInvalidQuery)
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("%w: query too long (max %d bytes)", domain.ErrInvalidQuery, MaxTextLength)
	}

	if lim.Default <= 0 {
		lim.Default = DefaultMaxResults
	}
	if lim.Ceiling <= 0 {
		lim.Ceiling = MaxResultsCeiling
	}

	maxResults := lim.Default
	if p.MaxResults != nil {
		maxResults = *p.MaxResults
		if maxResults < 0 {
			return Query{}, fmt.Errorf("%w: max_results must be >= 0, got %d", domain.ErrInvalidQuery, maxResults)
		}
	}
	if maxResults > lim.Ceiling {
		maxResults = lim.Ceiling
	}

	q := Query{text: text, maxResults: maxResults}
	for _, s := range []struct {
		name string
		in   []string
		out  *[]string
	}{
		{"locations", p.Locations, &q.locations},
		{"required_skills", p.RequiredSkills, &q.requiredSkills},
		{"preferred_skills", p.PreferredSkills, &q.preferredSkills},
		{"exclude_keywords", p.ExcludeKeywords, &q.excludeKeywords},
	} {
		norm := Normalize(s.in)
		if len(norm) > MaxFilterTerms {
			return Query{}, fmt.Errorf("%w: %s: too many terms (max %d)", domain.ErrInvalidQuery, s.name, MaxFilterTerms)
		}
		*s.out = norm
	}

	return q, nil
}

// Normalize lower-cases, trims, drops empties, de-duplicates and sorts terms.
func Normalize(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Text returns the trimmed query text.
func (q *Query) Text() string { return q.text }

// NormalizedText returns the text lower-cased with whitespace collapsed.
func (q *Query) NormalizedText() string {
	return strings.Join(strings.Fields(strings.ToLower(q.text)), " ")
}

// Locations returns the OR location filter.
func (q *Query) Locations() []string { return q.locations }

// RequiredSkills returns the AND skill filter.
func (q *Query) RequiredSkills() []string { return q.requiredSkills }

// PreferredSkills returns the boost-only skills.
func (q *Query) PreferredSkills() []string { return q.preferredSkills }

// ExcludeKeywords returns the disqualifying keywords.
func (q *Query) ExcludeKeywords() []string { return q.excludeKeywords }

// MaxResults returns the effective result count after defaulting and clamping.
func (q *Query) MaxResults() int { return q.maxResults }
