package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/ternarybob/datapilot/internal/queue"
	"github.com/ternarybob/datapilot/internal/storage/badger"
	"github.com/ternarybob/datapilot/internal/storage/file"
	"github.com/ternarybob/datapilot/internal/worker"
)

// memQueue records enqueued messages without a backing store
type memQueue struct {
	messages []queue.Message
}

func (q *memQueue) Enqueue(ctx context.Context, msg queue.Message) error {
	q.messages = append(q.messages, msg)
	return nil
}

func (q *memQueue) Receive(ctx context.Context) (*queue.Message, *queue.Receipt, error) {
	return nil, nil, queue.ErrNoMessage
}

func (q *memQueue) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return nil
}

func (q *memQueue) Close() error { return nil }

type handlerFixture struct {
	handler *JobHandler
	jobs    *badger.JobStore
	uploads *file.LocalStore
	results *file.LocalStore
	queue   *memQueue
	cleanup func()
}

func newHandlerFixture(t *testing.T, limits common.LimitsConfig) *handlerFixture {
	t.Helper()
	logger := arbor.NewLogger()

	dbDir, err := ioutil.TempDir("", "handler-db")
	require.NoError(t, err)
	blobDir, err := ioutil.TempDir("", "handler-blobs")
	require.NoError(t, err)

	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: dbDir})
	require.NoError(t, err)

	uploads, err := file.NewLocalStore(blobDir+"/uploads", logger)
	require.NoError(t, err)
	results, err := file.NewLocalStore(blobDir+"/results", logger)
	require.NoError(t, err)

	jobs := badger.NewJobStore(db, logger)
	q := &memQueue{}
	handler := NewJobHandler(limits, jobs, uploads, results, q, logger)

	return &handlerFixture{
		handler: handler,
		jobs:    jobs,
		uploads: uploads,
		results: results,
		queue:   q,
		cleanup: func() {
			db.Close()
			os.RemoveAll(dbDir)
			os.RemoveAll(blobDir)
		},
	}
}

func multipartUpload(t *testing.T, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadAcceptsCSV(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.handler.UploadHandler(w, multipartUpload(t, "sales.csv", "region,units\nnorth,10\n"))

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["job_id"], "job_")
	assert.Equal(t, "submitted", resp["status"])

	// Registry record, stored blob and queue message all exist
	job, err := f.jobs.GetJob(context.Background(), resp["job_id"])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSubmitted, job.Status)
	assert.Equal(t, "sales.csv", job.FileName)
	assert.Equal(t, "csv", job.Format)

	data, err := f.uploads.Read(context.Background(), job.FileRef)
	require.NoError(t, err)
	assert.Contains(t, string(data), "region,units")

	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, job.ID, f.queue.messages[0].JobID)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.handler.UploadHandler(w, multipartUpload(t, "report.pdf", "%PDF-1.4 not tabular"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.queue.messages)
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()

	req := httptest.NewRequest("POST", "/api/upload", bytes.NewBufferString("plain body"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	f.handler.UploadHandler(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	limits := common.NewDefaultConfig().Limits
	limits.MaxFileSize = 64
	f := newHandlerFixture(t, limits)
	defer f.cleanup()

	big := bytes.Repeat([]byte("a,b\n1,2\n"), 100)
	w := httptest.NewRecorder()
	f.handler.UploadHandler(w, multipartUpload(t, "big.csv", string(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, f.queue.messages)
}

func TestStatusReturnsJob(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	job := models.NewAnalysisJob("job-status", "data.csv", "job-status/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, job))

	w := httptest.NewRecorder()
	f.handler.StatusHandler(w, httptest.NewRequest("GET", "/api/jobs/job-status", nil), "job-status")

	require.Equal(t, http.StatusOK, w.Code)
	var resp jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-status", resp.JobID)
	assert.Equal(t, models.JobStatusSubmitted, resp.Status)
}

func TestStatusUnknownJobReturns404(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()

	w := httptest.NewRecorder()
	f.handler.StatusHandler(w, httptest.NewRequest("GET", "/api/jobs/nope", nil), "nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFailsProcessingJobPastDeadline(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	job := models.NewAnalysisJob("job-stale", "data.csv", "job-stale/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, job))
	_, err := f.jobs.MarkProcessing(ctx, "job-stale", -time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.handler.StatusHandler(w, httptest.NewRequest("GET", "/api/jobs/job-stale", nil), "job-stale")

	require.Equal(t, http.StatusOK, w.Code)
	var resp jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.JobStatusFailed, resp.Status)
	assert.Equal(t, models.ErrorKindTimeout, resp.ErrorKind)
}

func TestCancelTransitionsAndConflicts(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	job := models.NewAnalysisJob("job-cancel", "data.csv", "job-cancel/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, job))

	w := httptest.NewRecorder()
	f.handler.CancelHandler(w, httptest.NewRequest("POST", "/api/jobs/job-cancel/cancel", nil), "job-cancel")
	require.Equal(t, http.StatusOK, w.Code)

	var resp jobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.JobStatusCancelled, resp.Status)
	assert.NotNil(t, resp.CancelledAt)

	// Cancelling a terminal job conflicts
	w = httptest.NewRecorder()
	f.handler.CancelHandler(w, httptest.NewRequest("POST", "/api/jobs/job-cancel/cancel", nil), "job-cancel")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	f.handler.CancelHandler(w, httptest.NewRequest("POST", "/api/jobs/nope/cancel", nil), "nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResultServesCompletedArtifact(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	job := models.NewAnalysisJob("job-done", "data.csv", "job-done/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, job))
	_, err := f.jobs.MarkProcessing(ctx, "job-done", time.Minute)
	require.NoError(t, err)

	ref := worker.ResultRef("job-done")
	_, err = f.results.Write(ctx, ref, []byte(`{"job_id":"job-done","report":{}}`))
	require.NoError(t, err)
	_, err = f.jobs.MarkCompleted(ctx, "job-done", ref)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.handler.ResultHandler(w, httptest.NewRequest("GET", "/api/jobs/job-done/result", nil), "job-done")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"job_id":"job-done"`)
}

func TestResultServesErrorArtifactForFailedJob(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	job := models.NewAnalysisJob("job-bad", "data.csv", "job-bad/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, job))

	artifact := models.NewErrorArtifact("job-bad", models.ErrorKindProcessing, "unparseable file")
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	_, err = f.results.Write(ctx, worker.ErrorRef("job-bad"), data)
	require.NoError(t, err)
	_, err = f.jobs.MarkFailed(ctx, "job-bad", models.ErrorKindProcessing, "unparseable file")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.handler.ResultHandler(w, httptest.NewRequest("GET", "/api/jobs/job-bad/result", nil), "job-bad")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "processing_error")
	assert.Contains(t, w.Body.String(), "unparseable file")
}

func TestResultConflictsForNonTerminalAndCancelled(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	pending := models.NewAnalysisJob("job-pending", "data.csv", "job-pending/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, pending))

	w := httptest.NewRecorder()
	f.handler.ResultHandler(w, httptest.NewRequest("GET", "/api/jobs/job-pending/result", nil), "job-pending")
	assert.Equal(t, http.StatusConflict, w.Code)

	cancelled := models.NewAnalysisJob("job-gone", "data.csv", "job-gone/upload.csv", "csv", 42)
	require.NoError(t, f.jobs.SaveJob(ctx, cancelled))
	_, err := f.jobs.MarkCancelled(ctx, "job-gone")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	f.handler.ResultHandler(w, httptest.NewRequest("GET", "/api/jobs/job-gone/result", nil), "job-gone")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListJobsFiltersByStatus(t *testing.T) {
	f := newHandlerFixture(t, common.NewDefaultConfig().Limits)
	defer f.cleanup()
	ctx := context.Background()

	for _, id := range []string{"job-a", "job-b", "job-c"} {
		job := models.NewAnalysisJob(id, id+".csv", id+"/upload.csv", "csv", 10)
		require.NoError(t, f.jobs.SaveJob(ctx, job))
	}
	_, err := f.jobs.MarkCancelled(ctx, "job-c")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.handler.ListJobsHandler(w, httptest.NewRequest("GET", "/api/jobs?status=submitted", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Jobs  []jobResponse `json:"jobs"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	for _, job := range resp.Jobs {
		assert.Equal(t, models.JobStatusSubmitted, job.Status)
	}
}

func TestExtractJobID(t *testing.T) {
	tests := []struct {
		path   string
		jobID  string
		action string
	}{
		{"/api/jobs/job_123", "job_123", ""},
		{"/api/jobs/job_123/cancel", "job_123", "cancel"},
		{"/api/jobs/job_123/result", "job_123", "result"},
		{"/api/jobs/", "", ""},
	}
	for _, tt := range tests {
		jobID, action := ExtractJobID(tt.path)
		assert.Equal(t, tt.jobID, jobID, tt.path)
		assert.Equal(t, tt.action, action, tt.path)
	}
}
