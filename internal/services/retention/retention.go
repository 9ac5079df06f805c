// -----------------------------------------------------------------------
// Retention Sweeper - scheduled cleanup of old jobs and artifacts
// -----------------------------------------------------------------------

package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/storage/badger"
	"github.com/ternarybob/datapilot/internal/storage/file"
	"github.com/ternarybob/datapilot/internal/worker"
)

// Service deletes terminal jobs older than the retention window along
// with their upload and result blobs. Only terminal jobs are touched:
// a submitted or processing job is never swept regardless of age.
type Service struct {
	jobs    *badger.JobStore
	uploads file.BlobStore
	results file.BlobStore
	maxAge  time.Duration
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	running bool
}

// NewService creates a stopped retention sweeper
func NewService(cfg *common.RetentionConfig, jobs *badger.JobStore, uploads, results file.BlobStore, logger arbor.ILogger) (*Service, error) {
	maxAge, err := time.ParseDuration(cfg.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("invalid retention max_age %q: %w", cfg.MaxAge, err)
	}

	return &Service{
		jobs:    jobs,
		uploads: uploads,
		results: results,
		maxAge:  maxAge,
		cron:    cron.New(),
		logger:  logger,
	}, nil
}

// Start schedules the sweeper on the given cron expression
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("retention sweeper already running")
	}
	if schedule == "" {
		schedule = "0 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Str("schedule", schedule).
		Str("max_age", s.maxAge.String()).
		Msg("Retention sweeper started")
	return nil
}

// Stop halts the sweeper, waiting for an in-progress sweep
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Retention sweeper stopped")
}

// Sweep removes every terminal job older than the retention window and
// returns how many were deleted
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.maxAge)

	jobs, err := s.jobs.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	deleted := 0
	for _, job := range jobs {
		if err := s.deleteJob(ctx, job.ID, job.FileRef); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to sweep job")
			continue
		}
		deleted++
	}

	s.logger.Info().
		Int("deleted", deleted).
		Int("candidates", len(jobs)).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Msg("Retention sweep finished")
	return deleted, nil
}

// deleteJob removes the blobs first so a crash leaves a sweepable job
// record rather than orphaned files
func (s *Service) deleteJob(ctx context.Context, jobID, fileRef string) error {
	if fileRef != "" {
		if err := s.uploads.Delete(ctx, fileRef); err != nil {
			return fmt.Errorf("failed to delete upload: %w", err)
		}
	}
	if err := s.results.Delete(ctx, worker.ResultRef(jobID)); err != nil {
		return fmt.Errorf("failed to delete result artifact: %w", err)
	}
	if err := s.results.Delete(ctx, worker.ErrorRef(jobID)); err != nil {
		return fmt.Errorf("failed to delete error artifact: %w", err)
	}
	return s.jobs.DeleteJob(ctx, jobID)
}
