// -----------------------------------------------------------------------
// Analysis Job - registry record tracked through the processing lifecycle
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus represents the state of an analysis job
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true for states that end the job lifecycle
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ErrorKind classifies why a job failed
type ErrorKind string

const (
	// ErrorKindTimeout means the job exceeded its processing deadline
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindProcessing means parsing or analysis raised an unhandled error
	ErrorKindProcessing ErrorKind = "processing_error"
	// ErrorKindWorkerShutdown means the process terminated mid-job
	ErrorKindWorkerShutdown ErrorKind = "worker_shutdown"
	// ErrorKindStorage means storage reads/writes exhausted their retries
	ErrorKindStorage ErrorKind = "storage_failure"
)

// IssueKindLLMFallback marks a completed job whose insights came from the
// deterministic fallback path. It is informational, never a job failure.
const IssueKindLLMFallback = "llm_failure_fallback"

// AnalysisJob is the registry record for one file-to-insights request.
// The registry is the single source of truth: the worker never caches a
// copy across phase boundaries, every status check round-trips here.
type AnalysisJob struct {
	ID     string    `json:"id" badgerhold:"key"`
	Status JobStatus `json:"status" badgerholdIndex:"Status"`

	// Uploaded file reference
	FileName string `json:"file_name"`
	FileRef  string `json:"file_ref"`  // Storage reference for the raw upload
	FileSize int64  `json:"file_size"` // Bytes
	Format   string `json:"format"`    // "csv", "json" or "xlsx"

	// Result/error - exactly one is set once the job is terminal,
	// neither for cancelled jobs
	ResultRef    string    `json:"result_ref,omitempty"` // Storage reference for the result artifact
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	TimeoutAt   *time.Time `json:"timeout_at,omitempty"` // Absolute deadline set when processing starts

	// Phase is a coarse progress marker for status polling
	// ("parsing", "summarizing", "generating_insights", "persisting")
	Phase string `json:"phase,omitempty"`

	Provider string `json:"provider,omitempty"` // Insight provider used ("claude", "gemini")
}

// NewAnalysisJob creates a job in the submitted state
func NewAnalysisJob(id, fileName, fileRef, format string, fileSize int64) *AnalysisJob {
	now := time.Now()
	return &AnalysisJob{
		ID:        id,
		Status:    JobStatusSubmitted,
		FileName:  fileName,
		FileRef:   fileRef,
		FileSize:  fileSize,
		Format:    format,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing transitions the job to processing and stamps the deadline
func (j *AnalysisJob) MarkProcessing(timeout time.Duration) {
	now := time.Now()
	deadline := now.Add(timeout)
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.TimeoutAt = &deadline
	j.UpdatedAt = now
}

// MarkCompleted transitions the job to completed with its result reference
func (j *AnalysisJob) MarkCompleted(resultRef string) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.ResultRef = resultRef
	j.ErrorKind = ""
	j.ErrorMessage = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.Phase = ""
}

// MarkFailed transitions the job to failed with an error kind and message
func (j *AnalysisJob) MarkFailed(kind ErrorKind, message string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ResultRef = ""
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.Phase = ""
}

// MarkCancelled transitions the job to cancelled. Cancellation produces
// neither a result nor an error artifact.
func (j *AnalysisJob) MarkCancelled() {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.CancelledAt = &now
	j.UpdatedAt = now
	j.Phase = ""
}

// DeadlineExceeded reports whether the processing deadline has passed
func (j *AnalysisJob) DeadlineExceeded(now time.Time) bool {
	return j.TimeoutAt != nil && now.After(*j.TimeoutAt)
}
