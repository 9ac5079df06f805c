// -----------------------------------------------------------------------
// Job Handler - upload, status, cancel and result endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/ternarybob/datapilot/internal/queue"
	"github.com/ternarybob/datapilot/internal/services/parser"
	"github.com/ternarybob/datapilot/internal/storage/badger"
	"github.com/ternarybob/datapilot/internal/storage/file"
	"github.com/ternarybob/datapilot/internal/worker"
)

// JobHandler handles the analysis job API surface. It only touches the
// registry, the blob stores and the queue: all processing happens in the
// worker pool.
type JobHandler struct {
	limits  common.LimitsConfig
	jobs    *badger.JobStore
	uploads file.BlobStore
	results file.BlobStore
	queue   queue.Manager
	logger  arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(limits common.LimitsConfig, jobs *badger.JobStore, uploads, results file.BlobStore, queueMgr queue.Manager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		limits:  limits,
		jobs:    jobs,
		uploads: uploads,
		results: results,
		queue:   queueMgr,
		logger:  logger,
	}
}

// jobResponse is the wire shape for a registry record
type jobResponse struct {
	JobID        string           `json:"job_id"`
	Status       models.JobStatus `json:"status"`
	FileName     string           `json:"file_name"`
	Format       string           `json:"format"`
	FileSize     int64            `json:"file_size"`
	Phase        string           `json:"phase,omitempty"`
	ErrorKind    models.ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CancelledAt  *time.Time       `json:"cancelled_at,omitempty"`
}

func toJobResponse(job *models.AnalysisJob) jobResponse {
	return jobResponse{
		JobID:        job.ID,
		Status:       job.Status,
		FileName:     job.FileName,
		Format:       job.Format,
		FileSize:     job.FileSize,
		Phase:        job.Phase,
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		Provider:     job.Provider,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		CancelledAt:  job.CancelledAt,
	}
}

// UploadHandler accepts a data file and submits it for analysis
// POST /api/upload (multipart form, field "file")
func (h *JobHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	ctx := r.Context()

	maxSize := h.limits.MaxFileSize
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	fileReader, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte upload limit", maxSize))
			return
		}
		WriteError(w, http.StatusBadRequest, "multipart form field 'file' is required")
		return
	}
	defer fileReader.Close()

	format, err := parser.DetectFormat(header.Filename)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(fileReader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte upload limit", maxSize))
			return
		}
		WriteError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	jobID := common.NewJobID()
	uploadRef := fmt.Sprintf("%s/upload.%s", jobID, format)

	if _, err := h.uploads.Write(ctx, uploadRef, data); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to store upload")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job := models.NewAnalysisJob(jobID, header.Filename, uploadRef, format, int64(len(data)))
	if err := h.jobs.SaveJob(ctx, job); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to create job record")
		WriteError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := h.queue.Enqueue(ctx, queue.Message{JobID: jobID, Type: "analysis"}); err != nil {
		// The record exists but will never be picked up: fail it so the
		// client sees a terminal status instead of a stuck submission.
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to enqueue job")
		h.jobs.MarkFailed(ctx, jobID, models.ErrorKindStorage, "failed to enqueue job")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("file_name", header.Filename).
		Str("format", format).
		Int("size", len(data)).
		Msg("Job submitted")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(models.JobStatusSubmitted),
	})
}

// ListJobsHandler returns recent jobs, optionally filtered by status
// GET /api/jobs?status=completed&limit=50
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := models.JobStatus(r.URL.Query().Get("status"))
	limit := QueryInt(r, "limit", 50)

	jobs, err := h.jobs.ListJobs(r.Context(), status, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
	})
}

// StatusHandler returns the registry record for one job
// GET /api/jobs/{id}
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, badger.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job")
		WriteError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	// A processing job past its deadline belongs to a worker that died
	// mid-flight. Fail it here so pollers are not stuck forever.
	if job.Status == models.JobStatusProcessing && job.DeadlineExceeded(time.Now()) {
		if stalled, err := h.jobs.MarkStalled(ctx, jobID); err == nil {
			job = stalled
		}
	}

	WriteJSON(w, http.StatusOK, toJobResponse(job))
}

// CancelHandler cancels a non-terminal job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	job, err := h.jobs.MarkCancelled(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, badger.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, badger.ErrAlreadyTerminal):
			WriteError(w, http.StatusConflict, "job already in a terminal state")
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
			WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		}
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	WriteJSON(w, http.StatusOK, toJobResponse(job))
}

// ResultHandler serves the terminal artifact for a job: the result
// document for completed jobs, the error document for failed ones.
// GET /api/jobs/{id}/result
func (h *JobHandler) ResultHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, badger.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job")
		WriteError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	var ref string
	switch job.Status {
	case models.JobStatusCompleted:
		ref = job.ResultRef
		if ref == "" {
			ref = worker.ResultRef(jobID)
		}
	case models.JobStatusFailed:
		ref = worker.ErrorRef(jobID)
	case models.JobStatusCancelled:
		WriteError(w, http.StatusConflict, "job was cancelled and has no result")
		return
	default:
		WriteError(w, http.StatusConflict,
			fmt.Sprintf("job is %s, result not available yet", job.Status))
		return
	}

	data, err := h.results.Read(ctx, ref)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Str("ref", ref).Msg("Failed to read artifact")
		WriteError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ExtractJobID pulls the job id out of /api/jobs/{id}[/...] paths
func ExtractJobID(path string) (jobID, action string) {
	trimmed := strings.TrimPrefix(path, "/api/jobs/")
	parts := strings.SplitN(trimmed, "/", 2)
	jobID = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return jobID, action
}
