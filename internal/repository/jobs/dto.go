package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/jobdex/internal/db/redis"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// Hash field names of a stored posting.
const (
	fieldID          = "id"
	fieldText        = "text"
	fieldSource      = "source"
	fieldFingerprint = "fingerprint"
	fieldMetadata    = "metadata"
	fieldVector      = "vector"
)

// returnFields is what KNN hits carry back; the vector itself is never returned.
var returnFields = []string{fieldID, fieldText, fieldSource, fieldFingerprint, fieldMetadata}

// buildHashFields converts a posting into a flat map for HSET.
// Metadata is stored as a JSON array to keep its order.
func buildHashFields(p *job.Posting) (map[string]string, error) {
	md, err := json.Marshal(p.Metadata())
	if err != nil {
		return nil, fmt.Errorf("marshal metadata %s: %w", p.ID(), err)
	}
	m := map[string]string{
		fieldID:          p.ID(),
		fieldText:        p.Text(),
		fieldSource:      string(p.Source()),
		fieldFingerprint: p.Fingerprint(),
		fieldMetadata:    string(md),
	}
	if vec := p.Embedding(); len(vec) > 0 {
		m[fieldVector] = redis.VectorToBytes(vec)
	}
	return m, nil
}

// parseHashFields converts a stored hash back into a posting. The vector is not
// decoded; readers never need it.
func parseHashFields(m map[string]string) (job.Posting, error) {
	id := m[fieldID]
	if id == "" {
		return job.Posting{}, fmt.Errorf("stored posting without id")
	}
	var md job.Metadata
	if raw := m[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			return job.Posting{}, fmt.Errorf("unmarshal metadata %s: %w", id, err)
		}
	}
	return job.Reconstruct(id, job.Source(m[fieldSource]), m[fieldText], md, m[fieldFingerprint], nil), nil
}
