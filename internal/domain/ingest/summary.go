package ingest

import (
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// SourceFailure records a source that could not be fetched. Error is the raw upstream text.
type SourceFailure struct {
	Source job.Source `json:"source"`
	Error  string     `json:"error"`
}

// Summary is the outcome of one ingestion run.
type Summary struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration_ns"`
	Fetched     int                `json:"fetched"`
	PerSource   map[job.Source]int `json:"per_source"`
	Invalid     int                `json:"invalid"`
	Duplicates  int                `json:"duplicates"`
	Filtered    int                `json:"filtered"`
	Embedded    int                `json:"embedded"`
	EmbedFailed int                `json:"embed_failed"`
	Upserted    int                `json:"upserted"`
	// EmbedPaths counts vectors per embedding path (remote, local_fallback, local).
	EmbedPaths     map[string]int  `json:"embed_paths,omitempty"`
	SourceFailures []SourceFailure `json:"source_failures,omitempty"`
	Fatal          string          `json:"fatal,omitempty"`
}

// Aborted reports whether the run ended on a fatal error.
func (s *Summary) Aborted() bool { return s.Fatal != "" }
