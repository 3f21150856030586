package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsplit/stemsplit/internal/api/handler"
	"github.com/stemsplit/stemsplit/internal/domain"
	"github.com/stemsplit/stemsplit/internal/jobdir"
	"github.com/stemsplit/stemsplit/internal/store"
)

type testServer struct {
	router *gin.Engine
	store  store.JobStore
	dirs   *jobdir.Allocator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dirs, err := jobdir.NewAllocator(t.TempDir())
	require.NoError(t, err)

	s := store.NewMemory()
	r := SetupRouter(&handler.Dependencies{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:        s,
		Dirs:         dirs,
		Models:       []string{"htdemucs", "htdemucs_ft", "mdx"},
		DefaultModel: "htdemucs_ft",
	})

	return &testServer{router: r, store: s, dirs: dirs}
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// audioForm builds a multipart body with an "audio" file part plus any
// extra form fields.
func audioForm(t *testing.T, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fw, err := mw.CreateFormFile("audio", "track.mp3")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	return buf, mw.FormDataContentType()
}

func (ts *testServer) submit(t *testing.T, content []byte, fields map[string]string) string {
	t.Helper()

	body, contentType := audioForm(t, content, fields)
	rec := ts.do(t, http.MethodPost, "/split", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

// finishJob drives a submitted job to FINISHED with the given stems on
// disk, standing in for a worker pass.
func (ts *testServer) finishJob(t *testing.T, jobID string, vocals, instrumental []byte) {
	t.Helper()
	ctx := context.Background()

	job, err := ts.store.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, jobID, job.ID)

	writeResult(t, ts.dirs.VocalsPath(job.ID, job.Model), vocals)
	writeResult(t, ts.dirs.InstrumentalPath(job.ID, job.Model), instrumental)

	require.NoError(t, ts.store.SetStatus(ctx, jobID, domain.StatusFinished))
}

func writeResult(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestSubmit(t *testing.T) {
	ts := newTestServer(t)

	jobID := ts.submit(t, []byte("mixture-bytes"), nil)

	_, err := uuid.Parse(jobID)
	require.NoError(t, err)

	job, err := ts.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, "htdemucs_ft", job.Model)

	saved, err := os.ReadFile(ts.dirs.InputPath(jobID))
	require.NoError(t, err)
	assert.Equal(t, []byte("mixture-bytes"), saved)
}

func TestSubmit_NoFile(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/split", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio file provided", rec.Body.String())

	// A multipart body without the "audio" part is rejected the same way.
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	require.NoError(t, mw.WriteField("model", "mdx"))
	require.NoError(t, mw.Close())

	rec = ts.do(t, http.MethodPost, "/split", buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio file provided", rec.Body.String())
}

func TestSubmit_ModelSelection(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// Form field.
	jobID := ts.submit(t, []byte("a"), map[string]string{"model": "mdx"})
	job, err := ts.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "mdx", job.Model)

	// Query parameter.
	body, contentType := audioForm(t, []byte("b"), nil)
	rec := ts.do(t, http.MethodPost, "/split?model=htdemucs", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)
	job, err = ts.store.Get(ctx, rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "htdemucs", job.Model)
}

func TestSubmit_UnknownModel(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := audioForm(t, []byte("a"), map[string]string{"model": "bogus"})
	rec := ts.do(t, http.MethodPost, "/split", body, contentType)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown model: bogus", rec.Body.String())
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/status?uuid=never-submitted", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NONE", rec.Body.String())

	jobID := ts.submit(t, []byte("a"), nil)

	rec = ts.do(t, http.MethodGet, "/status?uuid="+jobID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", rec.Body.String())

	ts.finishJob(t, jobID, []byte("v"), []byte("i"))

	rec = ts.do(t, http.MethodGet, "/status?uuid="+jobID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FINISHED", rec.Body.String())
}

func TestResults(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/result/vocals?uuid=never-submitted", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown uuid", rec.Body.String())

	jobID := ts.submit(t, []byte("mixture"), nil)

	// Not finished yet.
	rec = ts.do(t, http.MethodGet, "/result/vocals?uuid="+jobID, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Job is not finished", rec.Body.String())

	ts.finishJob(t, jobID, []byte("vocals-bytes"), []byte("instrumental-bytes"))

	rec = ts.do(t, http.MethodGet, "/result/vocals?uuid="+jobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vocals-bytes", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/result/instrumental?uuid="+jobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "instrumental-bytes", rec.Body.String())
}

func TestResults_MissingFile(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	jobID := ts.submit(t, []byte("mixture"), nil)

	job, err := ts.store.DequeueNext(ctx)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)
	require.NoError(t, ts.store.SetStatus(ctx, jobID, domain.StatusFinished))

	// FINISHED but nothing on disk.
	rec := ts.do(t, http.MethodGet, "/result/vocals?uuid="+jobID, nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Result file missing", rec.Body.String())
}

func TestCleanup(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/cleanup?uuid=never-submitted", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed", rec.Body.String())

	jobID := ts.submit(t, []byte("mixture"), nil)

	// Queued jobs are protected.
	rec = ts.do(t, http.MethodPost, "/cleanup?uuid="+jobID, nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed", rec.Body.String())

	status, err := ts.store.GetStatus(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)

	ts.finishJob(t, jobID, []byte("v"), []byte("i"))

	rec = ts.do(t, http.MethodPost, "/cleanup?uuid="+jobID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/status?uuid="+jobID, nil, "")
	assert.Equal(t, "NONE", rec.Body.String())
	assert.NoDirExists(t, ts.dirs.Dir(jobID))
}

func TestCleanupAll(t *testing.T) {
	ts := newTestServer(t)

	first := ts.submit(t, []byte("a"), nil)
	second := ts.submit(t, []byte("b"), nil)

	// Rejected while anything is queued.
	rec := ts.do(t, http.MethodPost, "/cleanupall", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed", rec.Body.String())
	assert.DirExists(t, ts.dirs.Dir(first))

	ts.finishJob(t, first, []byte("v"), []byte("i"))
	ts.finishJob(t, second, []byte("v"), []byte("i"))

	rec = ts.do(t, http.MethodPost, "/cleanupall", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success", rec.Body.String())

	for _, jobID := range []string{first, second} {
		rec = ts.do(t, http.MethodGet, "/status?uuid="+jobID, nil, "")
		assert.Equal(t, "NONE", rec.Body.String())
		assert.NoDirExists(t, ts.dirs.Dir(jobID))
	}
}

func TestCleanupAll_Empty(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/cleanupall", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success", rec.Body.String())
}

func TestConnect(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/connect", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stemsplit", resp["service"])
	assert.NotEmpty(t, resp["version"])
	assert.NotEmpty(t, resp["protocol"])
}

func TestModels(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/models", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var models []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Equal(t, []string{"htdemucs", "htdemucs_ft", "mdx"}, models)
}
