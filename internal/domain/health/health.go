package health

import "time"

// Status is a component or composite health state.
type Status string

// Health states, ordered from best to worst.
const (
	Healthy     Status = "healthy"
	Degraded    Status = "degraded"
	Unavailable Status = "unavailable"
)

// Component names.
const (
	ComponentEmbedding   = "embedding"
	ComponentVectorStore = "vector_store"
	ComponentCache       = "cache"
	ComponentReranker    = "reranker"
)

// Component is the observed state of one dependency. Details carry raw upstream
// messages and must not be paraphrased.
type Component struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Required  bool              `json:"required"`
	Details   map[string]string `json:"details,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
	Latency   time.Duration     `json:"latency_ns"`
}

// Snapshot is the composite health of a deployment.
type Snapshot struct {
	Mode       string      `json:"mode"`
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
}

// Compose derives the composite status: any required component unavailable makes the
// whole unavailable; any degraded component or unavailable optional one makes it degraded.
func Compose(components []Component) Status {
	status := Healthy
	for _, c := range components {
		switch {
		case c.Status == Unavailable && c.Required:
			return Unavailable
		case c.Status != Healthy:
			status = Degraded
		}
	}
	return status
}

// StoreStats describes the indexed corpus. Dimension is 0 when no vector index exists.
type StoreStats struct {
	Count     int
	Dimension int
}
