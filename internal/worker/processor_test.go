package worker

import (
	"context"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/ternarybob/datapilot/internal/services/eda"
	"github.com/ternarybob/datapilot/internal/services/insights"
	"github.com/ternarybob/datapilot/internal/services/parser"
	"github.com/ternarybob/datapilot/internal/storage/badger"
	"github.com/ternarybob/datapilot/internal/storage/file"
)

const testCSV = "date,region,units\n2024-01-01,north,10\n2024-01-02,south,20\n2024-01-03,north,30\n"

// insightResponse uses only text evidence so it validates against any summary
const insightResponse = `{
  "analyst_insights": [
    {"id": "a1", "title": "Units trend upward", "summary": "Units increase day over day.", "severity": "info", "evidence": [{"type": "text", "text": "10, 20, 30 across three days"}]},
    {"id": "a2", "title": "Two regions", "summary": "Rows split between north and south.", "severity": "info", "evidence": [{"type": "text", "text": "north appears twice"}]}
  ],
  "business_insights": [
    {"id": "b1", "title": "North leads volume", "summary": "North accounts for most units.", "severity": "info", "evidence": [{"type": "text", "text": "north rows sum to 40 units"}]}
  ]
}`

// scriptedProvider lets tests interpose behavior between the phases
type scriptedProvider struct {
	response string
	err      error
	delay    time.Duration
	onCall   func()
	calls    int
}

func (s *scriptedProvider) Generate(ctx context.Context, system, user string) (string, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *scriptedProvider) Name() insights.ProviderType { return insights.ProviderClaude }
func (s *scriptedProvider) Model() string               { return "scripted" }
func (s *scriptedProvider) Close() error                { return nil }

type fixture struct {
	processor *AnalysisProcessor
	jobs      *badger.JobStore
	uploads   *file.LocalStore
	results   *file.LocalStore
	provider  *scriptedProvider
	cleanup   func()
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	dbDir, err := ioutil.TempDir("", "worker-db")
	require.NoError(t, err)
	blobDir, err := ioutil.TempDir("", "worker-blobs")
	require.NoError(t, err)

	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: dbDir})
	require.NoError(t, err)

	uploads, err := file.NewLocalStore(blobDir+"/uploads", logger)
	require.NoError(t, err)
	results, err := file.NewLocalStore(blobDir+"/results", logger)
	require.NoError(t, err)

	limits := common.NewDefaultConfig().Limits
	provider := &scriptedProvider{response: insightResponse}
	insightSvc := insights.NewService(
		provider,
		insights.NewBreaker(insights.DefaultBreakerConfig(), logger),
		insights.NewPromptBuilder(nil, false, 3, false, logger),
		insights.NewAuditLogger(""),
		logger,
	)

	jobs := badger.NewJobStore(db, logger)
	processor := NewAnalysisProcessor(
		jobs, uploads, results,
		parser.NewService(limits, logger),
		eda.NewEngine(limits, logger),
		insightSvc,
		timeout,
		logger,
	)

	return &fixture{
		processor: processor,
		jobs:      jobs,
		uploads:   uploads,
		results:   results,
		provider:  provider,
		cleanup: func() {
			db.Close()
			os.RemoveAll(dbDir)
			os.RemoveAll(blobDir)
		},
	}
}

func (f *fixture) submitJob(t *testing.T, jobID string) *models.AnalysisJob {
	t.Helper()
	ctx := context.Background()
	ref := jobID + "/upload.csv"
	_, err := f.uploads.Write(ctx, ref, []byte(testCSV))
	require.NoError(t, err)

	job := models.NewAnalysisJob(jobID, "sales.csv", ref, "csv", int64(len(testCSV)))
	require.NoError(t, f.jobs.SaveJob(ctx, job))
	return job
}

func TestProcessCompletesJob(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-ok")
	require.NoError(t, f.processor.Process(ctx, "job-ok", nil))

	job, err := f.jobs.GetJob(ctx, "job-ok")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, ResultRef("job-ok"), job.ResultRef)
	assert.Equal(t, "claude", job.Provider)
	assert.Empty(t, job.ErrorKind)

	data, err := f.results.Read(ctx, job.ResultRef)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"row_count": 3`)
	assert.Contains(t, string(data), "Units trend upward")
}

// The visibility lease must be renewed at every phase boundary so long
// jobs are never redelivered to a second worker mid-flight.
func TestProcessRenewsVisibilityLease(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-lease")

	renewals := 0
	extend := func(ctx context.Context) error {
		renewals++
		return nil
	}
	require.NoError(t, f.processor.Process(ctx, "job-lease", extend))

	// Claim plus the three downstream phase boundaries
	assert.Equal(t, 4, renewals)

	job, err := f.jobs.GetJob(ctx, "job-lease")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

// A failing lease renewal must not abort the job
func TestProcessToleratesLeaseRenewalFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-lease-err")

	extend := func(ctx context.Context) error {
		return context.DeadlineExceeded
	}
	require.NoError(t, f.processor.Process(ctx, "job-lease-err", extend))

	job, err := f.jobs.GetJob(ctx, "job-lease-err")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestProcessSkipsCancelledJobWithoutWork(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-cancelled")
	_, err := f.jobs.MarkCancelled(ctx, "job-cancelled")
	require.NoError(t, err)

	require.NoError(t, f.processor.Process(ctx, "job-cancelled", nil))

	assert.Equal(t, 0, f.provider.calls, "cancelled jobs must not reach the provider")
	job, err := f.jobs.GetJob(ctx, "job-cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Empty(t, job.ResultRef)

	refs, err := f.results.List(ctx, "job-cancelled")
	require.NoError(t, err)
	assert.Empty(t, refs, "cancelled jobs write no artifacts")
}

func TestProcessCancelMidFlightDiscardsWork(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-race")
	// Cancel lands while the provider call is in flight
	f.provider.onCall = func() {
		_, err := f.jobs.MarkCancelled(context.Background(), "job-race")
		require.NoError(t, err)
	}

	require.NoError(t, f.processor.Process(ctx, "job-race", nil))

	job, err := f.jobs.GetJob(ctx, "job-race")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Empty(t, job.ResultRef)

	refs, err := f.results.List(ctx, "job-race")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestProcessParseFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	ref := "job-bad/upload.csv"
	_, err := f.uploads.Write(ctx, ref, []byte("\n"))
	require.NoError(t, err)
	job := models.NewAnalysisJob("job-bad", "bad.csv", ref, "csv", 1)
	require.NoError(t, f.jobs.SaveJob(ctx, job))

	require.NoError(t, f.processor.Process(ctx, "job-bad", nil))

	stored, err := f.jobs.GetJob(ctx, "job-bad")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, models.ErrorKindProcessing, stored.ErrorKind)
	assert.Empty(t, stored.ResultRef)

	data, err := f.results.Read(ctx, ErrorRef("job-bad"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processing_error"`)
}

func TestProcessMissingUploadIsStorageFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	job := models.NewAnalysisJob("job-gone", "gone.csv", "job-gone/upload.csv", "csv", 10)
	require.NoError(t, f.jobs.SaveJob(ctx, job))

	require.NoError(t, f.processor.Process(ctx, "job-gone", nil))

	stored, err := f.jobs.GetJob(ctx, "job-gone")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, models.ErrorKindStorage, stored.ErrorKind)
}

func TestProcessTimeoutFailsJob(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-slow")
	f.provider.delay = 150 * time.Millisecond

	require.NoError(t, f.processor.Process(ctx, "job-slow", nil))

	stored, err := f.jobs.GetJob(ctx, "job-slow")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, models.ErrorKindTimeout, stored.ErrorKind)

	data, err := f.results.Read(ctx, ErrorRef("job-slow"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timeout"`)
}

func TestProcessShutdownFailsInFlightJob(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()

	f.submitJob(t, "job-shutdown")
	ctx, cancel := context.WithCancel(context.Background())
	// Shutdown lands while the provider call is in flight
	f.provider.onCall = cancel

	require.NoError(t, f.processor.Process(ctx, "job-shutdown", nil))

	stored, err := f.jobs.GetJob(context.Background(), "job-shutdown")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, models.ErrorKindWorkerShutdown, stored.ErrorKind)
}

func TestProcessUnknownJobIsAcknowledged(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()

	assert.NoError(t, f.processor.Process(context.Background(), "job-missing", nil))
}

func TestProcessFallbackStillCompletesJob(t *testing.T) {
	f := newFixture(t, time.Minute)
	defer f.cleanup()
	ctx := context.Background()

	f.submitJob(t, "job-fallback")
	f.provider.err = contextFreeError{}

	require.NoError(t, f.processor.Process(ctx, "job-fallback", nil))

	job, err := f.jobs.GetJob(ctx, "job-fallback")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status, "provider failure degrades to fallback, not job failure")
	assert.Equal(t, "fallback", job.Provider)

	data, err := f.results.Read(ctx, job.ResultRef)
	require.NoError(t, err)
	assert.Contains(t, string(data), models.IssueKindLLMFallback)
}

type contextFreeError struct{}

func (contextFreeError) Error() string { return "provider rejected the request" }
