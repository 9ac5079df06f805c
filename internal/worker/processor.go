// -----------------------------------------------------------------------
// Analysis Processor - executes one job from upload to artifact
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/ternarybob/datapilot/internal/services/eda"
	"github.com/ternarybob/datapilot/internal/services/insights"
	"github.com/ternarybob/datapilot/internal/services/parser"
	"github.com/ternarybob/datapilot/internal/storage/badger"
	"github.com/ternarybob/datapilot/internal/storage/file"
)

// Sentinel outcomes of a phase-boundary check
var (
	errJobCancelled   = errors.New("job cancelled")
	errJobDeadline    = errors.New("job deadline exceeded")
	errWorkerShutdown = errors.New("worker shutting down")
)

// AnalysisProcessor runs the parse, summarize, insight and persist
// phases of one job. The registry is re-read at every phase boundary:
// the processor never trusts a cached status across a phase.
type AnalysisProcessor struct {
	jobs     *badger.JobStore
	uploads  file.BlobStore
	results  file.BlobStore
	parser   *parser.Service
	eda      *eda.Engine
	insights *insights.Service
	timeout  time.Duration
	logger   arbor.ILogger
}

// NewAnalysisProcessor wires the processing pipeline
func NewAnalysisProcessor(
	jobs *badger.JobStore,
	uploads file.BlobStore,
	results file.BlobStore,
	parserSvc *parser.Service,
	engine *eda.Engine,
	insightSvc *insights.Service,
	timeout time.Duration,
	logger arbor.ILogger,
) *AnalysisProcessor {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &AnalysisProcessor{
		jobs:     jobs,
		uploads:  uploads,
		results:  results,
		parser:   parserSvc,
		eda:      engine,
		insights: insightSvc,
		timeout:  timeout,
		logger:   logger,
	}
}

// ResultRef returns the storage reference for a job's result artifact
func ResultRef(jobID string) string { return jobID + "/result.json" }

// ErrorRef returns the storage reference for a job's error artifact
func ErrorRef(jobID string) string { return jobID + "/error.json" }

// ExtendFunc renews the queue visibility lease of the message that
// delivered the job currently being processed
type ExtendFunc func(ctx context.Context) error

// Process executes one job to a terminal state. Returning nil means the
// queue message can be acknowledged; the job record itself carries the
// outcome. The extend callback, when non-nil, is invoked at every phase
// boundary so jobs outlasting the queue's visibility timeout are not
// redelivered mid-flight.
func (p *AnalysisProcessor) Process(ctx context.Context, jobID string, extend ExtendFunc) (err error) {
	job, getErr := p.jobs.GetJob(ctx, jobID)
	if getErr != nil {
		if errors.Is(getErr, badger.ErrJobNotFound) {
			p.logger.Warn().Str("job_id", jobID).Msg("Queue message references unknown job, discarding")
			return nil
		}
		return getErr
	}

	// A job cancelled before pickup is acknowledged without any
	// processing and without writing artifacts
	if job.Status.IsTerminal() {
		p.logger.Info().
			Str("job_id", jobID).
			Str("status", string(job.Status)).
			Msg("Job already terminal, skipping")
		return nil
	}

	job, procErr := p.jobs.MarkProcessing(ctx, jobID, p.timeout)
	if procErr != nil {
		// Lost the race to a cancel or a duplicate delivery
		p.logger.Info().Err(procErr).Str("job_id", jobID).Msg("Job not claimable, skipping")
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", jobID).
				Str("panic", fmt.Sprint(r)).
				Msg("Recovered panic while processing job")
			p.fail(jobID, models.ErrorKindProcessing, fmt.Sprintf("internal error: %v", r))
			err = nil
		}
	}()

	start := time.Now()
	p.logger.Info().
		Str("job_id", jobID).
		Str("file", job.FileName).
		Str("format", job.Format).
		Msg("Processing job")

	p.extendLease(jobCtx, jobID, extend)
	p.jobs.SetPhase(context.Background(), jobID, "parsing")

	data, readErr := p.uploads.Read(jobCtx, job.FileRef)
	if readErr != nil {
		if jobCtx.Err() != nil {
			return p.finishInterrupted(ctx, jobID)
		}
		p.fail(jobID, models.ErrorKindStorage, fmt.Sprintf("failed to read upload: %v", readErr))
		return nil
	}

	ds, parseErr := p.parser.Parse(data, job.Format)
	if parseErr != nil {
		p.fail(jobID, models.ErrorKindProcessing, fmt.Sprintf("failed to parse %s: %v", job.Format, parseErr))
		return nil
	}

	if gateErr := p.gate(jobCtx, jobID); gateErr != nil {
		return p.resolveGate(jobID, gateErr)
	}
	p.extendLease(jobCtx, jobID, extend)
	p.jobs.SetPhase(context.Background(), jobID, "summarizing")

	summary := p.eda.Summarize(ds)

	if gateErr := p.gate(jobCtx, jobID); gateErr != nil {
		return p.resolveGate(jobID, gateErr)
	}
	p.extendLease(jobCtx, jobID, extend)
	p.jobs.SetPhase(context.Background(), jobID, "generating_insights")

	report, insErr := p.insights.Generate(jobCtx, job.FileName, summary)
	if insErr != nil {
		return p.finishInterrupted(ctx, jobID)
	}
	if phErr := p.jobs.SetProvider(context.Background(), jobID, report.Provider); phErr != nil {
		p.logger.Debug().Err(phErr).Str("job_id", jobID).Msg("Could not record insight provider")
	}

	if gateErr := p.gate(jobCtx, jobID); gateErr != nil {
		return p.resolveGate(jobID, gateErr)
	}
	p.extendLease(jobCtx, jobID, extend)
	p.jobs.SetPhase(context.Background(), jobID, "persisting")

	artifact := &models.ResultArtifact{
		JobID:       jobID,
		Summary:     summary,
		Report:      report,
		ProcessedAt: time.Now(),
		ElapsedMs:   time.Since(start).Milliseconds(),
		FileName:    job.FileName,
		Format:      job.Format,
	}
	payload, marshalErr := json.MarshalIndent(artifact, "", "  ")
	if marshalErr != nil {
		p.fail(jobID, models.ErrorKindProcessing, fmt.Sprintf("failed to encode result: %v", marshalErr))
		return nil
	}

	ref := ResultRef(jobID)
	if _, writeErr := p.results.Write(jobCtx, ref, payload); writeErr != nil {
		if jobCtx.Err() != nil {
			return p.finishInterrupted(ctx, jobID)
		}
		p.fail(jobID, models.ErrorKindStorage, fmt.Sprintf("failed to write result: %v", writeErr))
		return nil
	}

	if _, compErr := p.jobs.MarkCompleted(context.Background(), jobID, ref); compErr != nil {
		// A cancel won the race after the blob was written: the record
		// stays cancelled and the orphan blob is removed
		p.logger.Info().Err(compErr).Str("job_id", jobID).Msg("Job reached terminal state before completion")
		if delErr := p.results.Delete(context.Background(), ref); delErr != nil {
			p.logger.Warn().Err(delErr).Str("ref", ref).Msg("Failed to remove orphaned result artifact")
		}
		return nil
	}

	p.logger.Info().
		Str("job_id", jobID).
		Int64("elapsed_ms", artifact.ElapsedMs).
		Bool("fallback", report.Fallback).
		Msg("Job completed")
	return nil
}

// extendLease renews the queue message's visibility. A failed renewal
// risks a duplicate delivery but never stops processing: a duplicate is
// discarded at the terminal-state check anyway.
func (p *AnalysisProcessor) extendLease(ctx context.Context, jobID string, extend ExtendFunc) {
	if extend == nil {
		return
	}
	if err := extend(ctx); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to extend queue visibility lease")
	}
}

// gate re-reads the registry at a phase boundary and decides whether
// processing may continue
func (p *AnalysisProcessor) gate(jobCtx context.Context, jobID string) error {
	job, err := p.jobs.GetJob(context.Background(), jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusCancelled {
		return errJobCancelled
	}
	if job.Status.IsTerminal() {
		// Another writer already finished this job
		return errJobCancelled
	}
	if job.DeadlineExceeded(time.Now()) {
		return errJobDeadline
	}
	switch jobCtx.Err() {
	case context.DeadlineExceeded:
		return errJobDeadline
	case context.Canceled:
		return errWorkerShutdown
	}
	return nil
}

// resolveGate turns a gate outcome into the job's terminal state
func (p *AnalysisProcessor) resolveGate(jobID string, gateErr error) error {
	switch {
	case errors.Is(gateErr, errJobCancelled):
		p.logger.Info().Str("job_id", jobID).Msg("Job cancelled mid-processing, discarding work")
		return nil
	case errors.Is(gateErr, errJobDeadline):
		p.fail(jobID, models.ErrorKindTimeout, fmt.Sprintf("processing exceeded the %s deadline", p.timeout))
		return nil
	case errors.Is(gateErr, errWorkerShutdown):
		p.fail(jobID, models.ErrorKindWorkerShutdown, "worker shut down while the job was in flight")
		return nil
	default:
		return gateErr
	}
}

// finishInterrupted classifies a context-driven interruption of a
// blocking call using a fresh registry read
func (p *AnalysisProcessor) finishInterrupted(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetJob(context.Background(), jobID)
	if err == nil && job.Status == models.JobStatusCancelled {
		p.logger.Info().Str("job_id", jobID).Msg("Job cancelled mid-processing, discarding work")
		return nil
	}
	if ctx.Err() != nil {
		// The outer context only dies on shutdown
		p.fail(jobID, models.ErrorKindWorkerShutdown, "worker shut down while the job was in flight")
		return nil
	}
	p.fail(jobID, models.ErrorKindTimeout, fmt.Sprintf("processing exceeded the %s deadline", p.timeout))
	return nil
}

// fail writes the error artifact then marks the job failed. If a cancel
// already made the job terminal the artifact is removed again: cancelled
// jobs own no artifacts.
func (p *AnalysisProcessor) fail(jobID string, kind models.ErrorKind, message string) {
	bg := context.Background()
	ref := ErrorRef(jobID)

	artifact := models.NewErrorArtifact(jobID, kind, message)
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err == nil {
		if _, werr := p.results.Write(bg, ref, payload); werr != nil {
			p.logger.Error().Err(werr).Str("job_id", jobID).Msg("Failed to write error artifact")
		}
	}

	if _, err := p.jobs.MarkFailed(bg, jobID, kind, message); err != nil {
		p.logger.Info().Err(err).Str("job_id", jobID).Msg("Job already terminal, discarding failure")
		if delErr := p.results.Delete(bg, ref); delErr != nil {
			p.logger.Warn().Err(delErr).Str("ref", ref).Msg("Failed to remove orphaned error artifact")
		}
		return
	}

	p.logger.Warn().
		Str("job_id", jobID).
		Str("error_kind", string(kind)).
		Str("message", message).
		Msg("Job failed")
}
