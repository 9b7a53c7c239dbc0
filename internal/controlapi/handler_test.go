package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/ghcollector/internal/model"
)

type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, format string, args ...interface{})      {}
func (noopLogger) Alert(ctx context.Context, format string, args ...interface{})     {}
func (noopLogger) Error(ctx context.Context, format string, args ...interface{})     {}
func (noopLogger) Warn(ctx context.Context, format string, args ...interface{})      {}
func (noopLogger) Debug(ctx context.Context, format string, args ...interface{})     {}
func (noopLogger) Notice(ctx context.Context, format string, args ...interface{})    {}
func (noopLogger) Critical(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Emergency(ctx context.Context, format string, args ...interface{}) {}

type stubJobs struct {
	enqueued []model.CollectionJob
	listErr  error
	listOut  []*model.CollectionJob
}

func (s *stubJobs) Enqueue(ctx context.Context, owner, name string, priority int) (*model.CollectionJob, error) {
	job := &model.CollectionJob{ID: int64(len(s.enqueued) + 1), Owner: owner, Name: name, Priority: priority}
	s.enqueued = append(s.enqueued, *job)
	return job, nil
}

func (s *stubJobs) List(ctx context.Context, status string, limit int) ([]*model.CollectionJob, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listOut, nil
}

func TestHandler_EnqueueCreatesJob(t *testing.T) {
	jobs := &stubJobs{}
	h := NewHandler(noopLogger{}, jobs)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body := strings.NewReader(`{"owner":"octocat","name":"Hello-World","priority":5}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got model.CollectionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "octocat", got.Owner)
	assert.Equal(t, 5, got.Priority)
}

func TestHandler_EnqueueRejectsMissingFields(t *testing.T) {
	jobs := &stubJobs{}
	h := NewHandler(noopLogger{}, jobs)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"owner":"octocat"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_EnqueueRejectsEmbeddedSlashInName(t *testing.T) {
	jobs := &stubJobs{}
	h := NewHandler(noopLogger{}, jobs)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{"owner":"octocat","name":"Hello/World"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, jobs.enqueued, "a name containing '/' must be rejected before reaching the job store")
}

func TestHandler_ListReturnsJobsFromStore(t *testing.T) {
	jobs := &stubJobs{listOut: []*model.CollectionJob{{ID: 1, Owner: "octocat", Name: "Hello-World"}}}
	h := NewHandler(noopLogger{}, jobs)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/jobs?status=failed", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []*model.CollectionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "octocat", got[0].Owner)
}

func TestHandler_HealthzReportsOK(t *testing.T) {
	h := NewHandler(noopLogger{}, &stubJobs{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandler_MethodNotAllowedOnJobs(t *testing.T) {
	h := NewHandler(noopLogger{}, &stubJobs{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodDelete, "/jobs", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
