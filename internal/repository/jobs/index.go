package jobs

import "github.com/kailas-cloud/jobdex/internal/db"

// buildIndex creates the postings index: a source TAG for diagnostics and an
// HNSW/COSINE vector field.
func buildIndex(name, prefix string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(name).
		Prefix(prefix).
		Tag(fieldSource).
		Vector(fieldVector, dim, db.HNSWParams{M: hnsw.M, EFConstruct: hnsw.EFConstruct}).
		Build()
}
