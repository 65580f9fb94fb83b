package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/job"
	"github.com/kailas-cloud/jobdex/internal/domain/mode"
	"github.com/kailas-cloud/jobdex/internal/usecase/embedding"
)

func TestRun_HappyPath(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, Config{}, repo, localEmbedder(4),
		&mockSource{name: job.RemoteOK, records: records("ro", 3)},
		&mockSource{name: job.ArbeitNow, records: records("an", 2)},
	)

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.RunID == "" {
		t.Error("expected run id")
	}
	if sum.Fetched != 5 || sum.Upserted != 5 || sum.Embedded != 5 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.PerSource[job.RemoteOK] != 3 || sum.PerSource[job.ArbeitNow] != 2 {
		t.Errorf("per source = %v", sum.PerSource)
	}
	if sum.EmbedPaths[string(embedding.PathLocal)] != 5 {
		t.Errorf("embed paths = %v", sum.EmbedPaths)
	}
	for _, p := range repo.upserted {
		if len(p.Embedding()) != 4 {
			t.Errorf("posting %s has %d-dim vector", p.ID(), len(p.Embedding()))
		}
	}
	// source order is preserved
	if repo.upserted[0].ID() != "ro_ro-0" || repo.upserted[3].ID() != "an_an-0" {
		t.Errorf("unexpected order: %s, %s", repo.upserted[0].ID(), repo.upserted[3].ID())
	}
}

func TestRun_SourceFailureIsolated(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, Config{}, repo, localEmbedder(4),
		&mockSource{name: job.HackerNews, err: errors.New("get https://news.ycombinator.com: status 503: busy")},
		&mockSource{name: job.RemoteOK, records: records("ro", 2)},
	)

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sum.SourceFailures) != 1 {
		t.Fatalf("expected 1 source failure, got %v", sum.SourceFailures)
	}
	f := sum.SourceFailures[0]
	if f.Source != job.HackerNews || f.Error != "get https://news.ycombinator.com: status 503: busy" {
		t.Errorf("failure = %+v", f)
	}
	if sum.Upserted != 2 {
		t.Errorf("upserted = %d, want 2", sum.Upserted)
	}
}

func TestRun_Dedup(t *testing.T) {
	same := raw("x-1", "Backend Engineer", "Build distributed systems in Go for payments.")
	repo := &mockRepo{}
	svc := newTestService(t, Config{}, repo, localEmbedder(4),
		&mockSource{name: job.RemoteOK, records: []job.RawPosting{same, same}},
		// same content under another source and id
		&mockSource{name: job.ArbeitNow, records: []job.RawPosting{same}},
	)

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Duplicates != 2 || sum.Upserted != 1 {
		t.Errorf("duplicates = %d, upserted = %d", sum.Duplicates, sum.Upserted)
	}
	if repo.upserted[0].Source() != job.RemoteOK {
		t.Errorf("first seen should win, got %s", repo.upserted[0].Source())
	}
}

func TestRun_Idempotent(t *testing.T) {
	repo := &mockRepo{}
	src := &mockSource{name: job.RemoteOK, records: records("ro", 3)}
	svc := newTestService(t, Config{}, repo, localEmbedder(4), src)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Upserted != 0 || sum.Duplicates != 3 {
		t.Errorf("second run = %+v", sum)
	}
}

func TestRun_InvalidAndFiltered(t *testing.T) {
	recs := []job.RawPosting{
		raw("", "No id", "Build distributed systems in Go for payments team."),
		raw("a", "", "Build distributed systems in Go for payments team."),
		{NativeID: "short", Title: "Dev"},
		raw("b", "Intern", "This is an unpaid internship working on distributed systems."),
		raw("c", "Links", "see https://a.io https://b.io https://c.io https://d.io for many great jobs"),
		raw("ok", "Backend Engineer", "Build distributed systems in Go for payments team."),
	}
	hn := []job.RawPosting{
		raw("1", "Acme | Go", "[dead]\nBuild distributed systems in Go for a payments team."),
	}
	repo := &mockRepo{}
	svc := newTestService(t, Config{MaxLinks: 3}, repo, localEmbedder(4),
		&mockSource{name: job.RemoteOK, records: recs},
		&mockSource{name: job.HackerNews, records: hn},
	)

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Invalid != 2 {
		t.Errorf("invalid = %d, want 2", sum.Invalid)
	}
	if sum.Filtered != 4 {
		t.Errorf("filtered = %d, want 4", sum.Filtered)
	}
	if sum.Upserted != 1 || repo.upserted[0].ID() != "ro_ok" {
		t.Errorf("upserted = %d", sum.Upserted)
	}
}

func TestRun_DimensionPreflight(t *testing.T) {
	repo := &mockRepo{dim: 768}
	emb := localEmbedder(384)
	svc := newTestService(t, Config{}, repo, emb, &mockSource{name: job.RemoteOK, records: records("ro", 1)})

	sum, err := svc.Run(context.Background())
	if !errors.Is(err, domain.ErrIngestionFatal) || !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected fatal dimension mismatch, got %v", err)
	}
	if !sum.Aborted() || !strings.Contains(sum.Fatal, "768") {
		t.Errorf("fatal = %q", sum.Fatal)
	}
	if emb.calls.Load() != 0 || len(repo.upserted) != 0 {
		t.Error("nothing should be embedded or written")
	}
}

func TestRun_FailedBatchDropped(t *testing.T) {
	recs := records("ro", 4)
	recs[3].Description = "Poison batch but long enough to pass the quality filter."
	repo := &mockRepo{}
	emb := localEmbedder(4)
	emb.failOn = "Poison"
	emb.err = domain.Wrap(domain.ErrEmbeddingUnavailable, errors.New("model crashed"))
	svc := newTestService(t, Config{BatchSize: 2}, repo, emb, &mockSource{name: job.RemoteOK, records: recs})

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.EmbedFailed != 2 || sum.Embedded != 2 || sum.Upserted != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_AllBatchesFailIsFatal(t *testing.T) {
	emb := localEmbedder(4)
	emb.failOn = "*"
	emb.err = domain.Wrap(domain.ErrEmbeddingUnavailable, errors.New("connection refused"))
	repo := &mockRepo{}
	svc := newTestService(t, Config{BatchSize: 2}, repo, emb, &mockSource{name: job.RemoteOK, records: records("ro", 3)})

	sum, err := svc.Run(context.Background())
	if !errors.Is(err, domain.ErrIngestionFatal) || !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected fatal embedding outage, got %v", err)
	}
	if !strings.Contains(sum.Fatal, "connection refused") {
		t.Errorf("fatal = %q", sum.Fatal)
	}
	if len(repo.upserted) != 0 {
		t.Error("nothing should be written")
	}
}

func TestRun_DimensionMismatchIsFatal(t *testing.T) {
	emb := localEmbedder(4)
	emb.failOn = "*"
	emb.err = domain.ErrDimensionMismatch
	recs := records("ro", 4)
	svc := newTestService(t, Config{BatchSize: 2}, &mockRepo{}, emb, &mockSource{name: job.RemoteOK, records: recs})

	if _, err := svc.Run(context.Background()); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestRun_UpsertFailureIsFatal(t *testing.T) {
	repo := &mockRepo{upsertErr: errors.New("hset: READONLY You can't write against a read only replica")}
	svc := newTestService(t, Config{}, repo, localEmbedder(4), &mockSource{name: job.RemoteOK, records: records("ro", 2)})

	sum, err := svc.Run(context.Background())
	if !errors.Is(err, domain.ErrIngestionFatal) {
		t.Fatalf("expected fatal, got %v", err)
	}
	if !strings.Contains(sum.Fatal, "READONLY") {
		t.Errorf("fatal = %q", sum.Fatal)
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	svc := newTestService(t, Config{}, &mockRepo{}, localEmbedder(4),
		&mockSource{name: job.RemoteOK, records: records("ro", 1), block: block, started: started})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background())
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}
	if !svc.Running() {
		t.Error("expected Running() during the run")
	}
	if _, err := svc.Run(context.Background()); !errors.Is(err, domain.ErrIngestionInProgress) {
		t.Errorf("expected ErrIngestionInProgress, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if svc.Running() {
		t.Error("guard not released")
	}
}

func TestRun_LightweightStoresWithoutVectors(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, Config{}, repo, nil, &mockSource{name: job.RemoteOK, records: records("ro", 2)})

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Upserted != 2 || sum.Embedded != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if repo.upserted[0].Embedding() != nil {
		t.Error("lightweight postings carry no vector")
	}
}

func TestRun_CloudFallbackPath(t *testing.T) {
	emb := &fallbackEmbedder{mockEmbedder: mockEmbedder{mode: mode.Cloud, dim: 4}}
	repo := &mockRepo{}
	svc := newTestService(t, Config{IngestFallback: true}, repo, emb, &mockSource{name: job.RemoteOK, records: records("ro", 3)})

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.fallbackCalls.Load() == 0 {
		t.Error("expected the fallback path to be used")
	}
	if sum.EmbedPaths[string(embedding.PathLocalFallback)] != 3 {
		t.Errorf("embed paths = %v", sum.EmbedPaths)
	}
	if len(repo.provisional) != 3 || len(repo.upserted) != 0 || sum.Upserted != 3 {
		t.Errorf("provisional = %d, registered = %d, summary = %+v",
			len(repo.provisional), len(repo.upserted), sum)
	}
}

func TestRun_FallbackPostingsReembeddedWhenRemoteRecovers(t *testing.T) {
	repo := &mockRepo{}
	src := &mockSource{name: job.RemoteOK, records: records("ro", 3)}

	degraded := &fallbackEmbedder{mockEmbedder: mockEmbedder{mode: mode.Cloud, dim: 4}}
	if _, err := newTestService(t, Config{IngestFallback: true}, repo, degraded, src).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	healthy := &mockEmbedder{mode: mode.Cloud, dim: 4}
	sum, err := newTestService(t, Config{IngestFallback: true}, repo, healthy, src).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if healthy.calls.Load() == 0 {
		t.Fatal("remote model was not called for fallback-embedded postings")
	}
	if sum.Duplicates != 0 || sum.Upserted != 3 || sum.EmbedPaths[string(embedding.PathRemote)] != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if len(repo.upserted) != 3 {
		t.Errorf("registered = %d, want 3", len(repo.upserted))
	}

	sum, err = newTestService(t, Config{IngestFallback: true}, repo, healthy, src).Run(context.Background())
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if sum.Duplicates != 3 || sum.Upserted != 0 {
		t.Errorf("remote-embedded postings should now be known: %+v", sum)
	}
}

func TestRun_CloudStrictWithoutFallback(t *testing.T) {
	emb := &fallbackEmbedder{mockEmbedder: mockEmbedder{mode: mode.Cloud, dim: 4}}
	svc := newTestService(t, Config{IngestFallback: false}, &mockRepo{}, emb, &mockSource{name: job.RemoteOK, records: records("ro", 2)})

	sum, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.fallbackCalls.Load() != 0 {
		t.Error("fallback must not be used when disabled")
	}
	if sum.EmbedPaths[string(embedding.PathRemote)] != 2 {
		t.Errorf("embed paths = %v", sum.EmbedPaths)
	}
}
