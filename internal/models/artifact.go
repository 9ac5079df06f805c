// -----------------------------------------------------------------------
// Artifacts - the documents persisted when a job reaches a terminal state
// -----------------------------------------------------------------------

package models

import "time"

// ResultArtifact is written to storage when a job completes
type ResultArtifact struct {
	JobID        string          `json:"job_id"`
	Summary      *DatasetSummary `json:"summary"`
	Report       *InsightReport  `json:"report"`
	ProcessedAt  time.Time       `json:"processed_at"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	FileName     string          `json:"file_name"`
	Format       string          `json:"format"`
}

// ErrorArtifact is written to storage when a job fails. Cancelled jobs
// write neither artifact.
type ErrorArtifact struct {
	JobID     string    `json:"id"`
	Status    string    `json:"status"` // Always "failed"
	Error     ErrorKind `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorArtifact builds the error document for a failed job
func NewErrorArtifact(jobID string, kind ErrorKind, message string) *ErrorArtifact {
	return &ErrorArtifact{
		JobID:     jobID,
		Status:    string(JobStatusFailed),
		Error:     kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}
