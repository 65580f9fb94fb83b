package domain

import "context"

type queryUsageKey struct{}

// QueryUsage collects what a single search request consumed on the embedding path.
// The HTTP handler puts a mutable pointer into the context, the search service fills it,
// and the handler copies it into the canonical log line.
type QueryUsage struct {
	TotalTokens int
	Embedded    bool // true if the query was vectorized, even when the vector came from cache
	CacheHit    bool // true if the whole result set was served from the search cache
}

// NewContextWithUsage returns a context with a usage collector attached.
func NewContextWithUsage(ctx context.Context) (context.Context, *QueryUsage) {
	u := &QueryUsage{}
	return context.WithValue(ctx, queryUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector. Returns nil if not set.
func UsageFromContext(ctx context.Context) *QueryUsage {
	u, _ := ctx.Value(queryUsageKey{}).(*QueryUsage)
	return u
}

// AddTokens records consumed embedding tokens.
func (u *QueryUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Embedded = true
	}
}

// MarkCacheHit records that the result set came from cache.
func (u *QueryUsage) MarkCacheHit() {
	if u != nil {
		u.CacheHit = true
	}
}
