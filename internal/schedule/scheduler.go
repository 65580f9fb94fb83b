// Package schedule triggers ingestion runs on a cron spec.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobdex/internal/domain"
	"github.com/kailas-cloud/jobdex/internal/domain/ingest"
	logpkg "github.com/kailas-cloud/jobdex/internal/logger"
)

// DefaultSpec runs ingestion daily at 02:00.
const DefaultSpec = "0 2 * * *"

// Runner executes one ingestion.
type Runner interface {
	Run(ctx context.Context) (ingest.Summary, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSpec checks a five-field cron spec. Empty is valid and disables scheduling.
func ValidateSpec(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs ingestion on a cron spec, skipping ticks while a run is active.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	spec    string
	logger  *zap.Logger
	ctx     context.Context
	running atomic.Bool
	skipped atomic.Int64
}

// New creates a scheduler. An empty spec yields a scheduler that never fires.
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		runner: runner,
		spec:   spec,
		logger: logger.With(zap.String("job", "ingestion"), zap.String("spec", spec)),
		ctx:    context.Background(),
	}
	if spec == "" {
		return s, nil
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule ingestion %q: %w", spec, err)
	}
	return s, nil
}

// Enabled reports whether a spec is configured.
func (s *Scheduler) Enabled() bool { return s.spec != "" }

// Skipped returns how many ticks were skipped because a run was active.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

// Start begins firing. ctx is passed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("ingestion schedule disabled")
		return
	}
	if ctx != nil {
		s.ctx = ctx
	}
	s.cron.Start()
	s.logger.Info("ingestion scheduled")
}

// Stop halts the scheduler and waits for an active run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Info("ingestion skipped: still running")
		return
	}
	defer s.running.Store(false)

	start := time.Now()
	sum, err := s.runner.Run(logpkg.WithFields(s.ctx, s.logger, zap.String("trigger", "schedule")))
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, domain.ErrIngestionInProgress):
		s.skipped.Add(1)
		s.logger.Info("ingestion skipped: run started elsewhere")
	case err != nil:
		s.logger.Error("scheduled ingestion failed",
			zap.String("run_id", sum.RunID), zap.Duration("duration", elapsed), zap.Error(err))
	default:
		s.logger.Info("scheduled ingestion finished",
			zap.String("run_id", sum.RunID),
			zap.Duration("duration", elapsed),
			zap.Int("upserted", sum.Upserted),
			zap.Int("source_failures", len(sum.SourceFailures)),
		)
	}
}
