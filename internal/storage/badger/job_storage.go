package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrJobNotFound is returned when a job id has no registry record
var ErrJobNotFound = fmt.Errorf("job not found")

// ErrAlreadyTerminal is returned when a transition targets a job that
// already reached a terminal state
var ErrAlreadyTerminal = fmt.Errorf("job already in terminal state")

// JobStore is the registry for analysis jobs. It is the single source of
// truth for job status: the worker and the cancel path both mutate records
// here through single-key read-modify-write operations.
type JobStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStore creates a new JobStore instance
func NewJobStore(db *BadgerDB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// SaveJob upserts a job record
func (s *JobStore) SaveJob(ctx context.Context, job *models.AnalysisJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob fetches a job record by id
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Mutate applies fn to the current record and writes it back in one
// read-modify-write. fn returning an error aborts without writing.
func (s *JobStore) Mutate(ctx context.Context, jobID string, fn func(*models.AnalysisJob) error) (*models.AnalysisJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := s.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// MarkProcessing transitions submitted -> processing and stamps the
// deadline. Returns the refreshed record so the worker sees the current
// status, including a cancellation that raced the dequeue.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID string, timeout time.Duration) (*models.AnalysisJob, error) {
	return s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status != models.JobStatusSubmitted {
			return fmt.Errorf("cannot start job %s in status %s", jobID, job.Status)
		}
		job.MarkProcessing(timeout)
		return nil
	})
}

// MarkCompleted writes the completed terminal state. The first terminal
// write wins: a job already cancelled or failed is left untouched.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID, resultRef string) (*models.AnalysisJob, error) {
	return s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, jobID, job.Status)
		}
		job.MarkCompleted(resultRef)
		return nil
	})
}

// MarkFailed writes the failed terminal state with an error kind
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, kind models.ErrorKind, message string) (*models.AnalysisJob, error) {
	return s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, jobID, job.Status)
		}
		job.MarkFailed(kind, message)
		return nil
	})
}

// MarkCancelled cancels a non-terminal job. Cancelling an already
// terminal job is a no-op error so callers can report 409.
func (s *JobStore) MarkCancelled(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, jobID, job.Status)
		}
		job.MarkCancelled()
		return nil
	})
}

// SetPhase records a coarse progress marker for status polling
func (s *JobStore) SetPhase(ctx context.Context, jobID, phase string) error {
	_, err := s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status.IsTerminal() {
			// Phase updates after a terminal write are dropped silently
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, jobID, job.Status)
		}
		job.Phase = phase
		return nil
	})
	return err
}

// SetProvider records which insight provider produced the report
// ("claude", "gemini" or "fallback")
func (s *JobStore) SetProvider(ctx context.Context, jobID, provider string) error {
	_, err := s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, jobID, job.Status)
		}
		job.Provider = provider
		return nil
	})
	return err
}

// ListJobs returns jobs filtered by status, newest first
func (s *JobStore) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.AnalysisJob, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = query.And("Status").Eq(status)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.AnalysisJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ListTerminalBefore returns terminal jobs whose last update is older
// than the cutoff. Used by the retention sweep.
func (s *JobStore) ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	query := badgerhold.Where("Status").In(
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled).
		And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list terminal jobs: %w", err)
	}

	result := make([]*models.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// DeleteJob removes a job record. Only the retention sweep deletes jobs.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.AnalysisJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// MarkStalled fails processing jobs past their deadline. Called by
// status readers so a stalled worker cannot leave a job processing
// forever.
func (s *JobStore) MarkStalled(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return s.Mutate(ctx, jobID, func(job *models.AnalysisJob) error {
		if job.Status != models.JobStatusProcessing {
			return fmt.Errorf("job %s is not processing", jobID)
		}
		if !job.DeadlineExceeded(time.Now()) {
			return fmt.Errorf("job %s has not passed its deadline", jobID)
		}
		job.MarkFailed(models.ErrorKindTimeout, "processing deadline exceeded")
		return nil
	})
}
