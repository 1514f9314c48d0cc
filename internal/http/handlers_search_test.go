package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gistseek/gistseek/internal/core"
	"github.com/gistseek/gistseek/internal/domain/model"
	apperrors "github.com/gistseek/gistseek/internal/errors"
	"github.com/gistseek/gistseek/internal/service"
)

type fakeJobs struct {
	jobs map[string]*model.SearchJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*model.SearchJob)}
}

func (f *fakeJobs) CreateJob(_ context.Context, job *model.SearchJob) error {
	if _, ok := f.jobs[job.ID]; ok {
		return apperrors.Conflict("job already exists")
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (*model.SearchJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job not found")
	}
	return job, nil
}

func (f *fakeJobs) AdvanceStatus(_ context.Context, id string, next model.SearchStatus, _ string) (bool, error) {
	job, ok := f.jobs[id]
	if !ok {
		return false, apperrors.NotFound("job not found")
	}
	if !job.Status.CanTransitionTo(next) {
		return false, nil
	}
	job.Status = next
	return true, nil
}

func (f *fakeJobs) DeleteJob(_ context.Context, id string) error {
	delete(f.jobs, id)
	return nil
}

type fakeMatches struct {
	byJob map[string][]model.MatchResult
}

func newFakeMatches() *fakeMatches {
	return &fakeMatches{byJob: make(map[string][]model.MatchResult)}
}

func (f *fakeMatches) AppendMatch(_ context.Context, jobID string, match model.MatchResult) error {
	f.byJob[jobID] = append(f.byJob[jobID], match)
	return nil
}

func (f *fakeMatches) ListMatches(_ context.Context, jobID string) ([]model.MatchResult, error) {
	return f.byJob[jobID], nil
}

type fakeQueue struct {
	enqueueErr error
}

func (f *fakeQueue) Enqueue(context.Context, *model.WorkItem) error { return f.enqueueErr }
func (f *fakeQueue) Dequeue(context.Context) (*core.Delivery, error) {
	return nil, model.ErrNoWorkAvailable
}

type apiFixture struct {
	server  *httptest.Server
	jobs    *fakeJobs
	matches *fakeMatches
	queue   *fakeQueue
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	jobs := newFakeJobs()
	matches := newFakeMatches()
	queue := &fakeQueue{}
	svc := service.NewSearchService(service.SearchServiceOptions{
		Jobs:    jobs,
		Matches: matches,
		Queue:   queue,
	})

	server := httptest.NewServer(NewRouter(RouterServices{Search: svc}))
	t.Cleanup(server.Close)
	return &apiFixture{server: server, jobs: jobs, matches: matches, queue: queue}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestSubmitSearch(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Post(
		fx.server.URL+"/api/v1/search",
		"application/json",
		strings.NewReader(`{"username":"octocat","pattern":"import requests"}`),
	)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decodeBody(t, resp)
	id, ok := body["request_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	job, exists := fx.jobs.jobs[id]
	require.True(t, exists)
	assert.Equal(t, model.StatusPending, job.Status)
}

func TestSubmitSearchRejectsMalformedBody(t *testing.T) {
	fx := newAPIFixture(t)

	tests := []struct {
		name    string
		payload string
		errCode string
	}{
		{name: "broken json", payload: `{"username":`, errCode: "invalid_json"},
		{name: "unknown field", payload: `{"username":"octocat","pattern":"x","extra":1}`, errCode: "invalid_json"},
		{name: "missing username", payload: `{"pattern":"x"}`, errCode: string(apperrors.ErrCodeValidation)},
		{name: "missing pattern", payload: `{"username":"octocat"}`, errCode: string(apperrors.ErrCodeValidation)},
		{name: "invalid pattern", payload: `{"username":"octocat","pattern":"(unclosed"}`, errCode: string(apperrors.ErrCodeValidation)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(fx.server.URL+"/api/v1/search", "application/json", strings.NewReader(tt.payload))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			body := decodeBody(t, resp)
			assert.Equal(t, tt.errCode, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestSubmitSearchQueueOutage(t *testing.T) {
	fx := newAPIFixture(t)
	fx.queue.enqueueErr = apperrors.QueueUnavailable("stream down")

	resp, err := http.Post(
		fx.server.URL+"/api/v1/search",
		"application/json",
		strings.NewReader(`{"username":"octocat","pattern":"x"}`),
	)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, string(apperrors.ErrCodeQueueUnavailable), body["error"])
}

func TestGetSearchStatus(t *testing.T) {
	fx := newAPIFixture(t)
	id := uuid.NewString()
	fx.jobs.jobs[id] = &model.SearchJob{ID: id, Status: model.StatusStarted}

	resp, err := http.Get(fx.server.URL + "/api/v1/search/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "STARTED", body["status"])
	assert.NotContains(t, body, "last_error")
}

func TestGetSearchStatusFailedJob(t *testing.T) {
	fx := newAPIFixture(t)
	id := uuid.NewString()
	detail := "list gists: upstream returned 500"
	fx.jobs.jobs[id] = &model.SearchJob{ID: id, Status: model.StatusFailure, LastError: &detail}

	resp, err := http.Get(fx.server.URL + "/api/v1/search/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "FAILURE", body["status"])
	assert.Equal(t, detail, body["last_error"])
}

func TestGetSearchStatusUnknownJob(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.server.URL + "/api/v1/search/" + uuid.NewString())
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, string(apperrors.ErrCodeNotFound), body["error"])
}

func TestGetSearchResults(t *testing.T) {
	fx := newAPIFixture(t)
	id := uuid.NewString()
	fx.jobs.jobs[id] = &model.SearchJob{ID: id, Username: "octocat", Pattern: "needle", Status: model.StatusSuccess}
	fx.matches.byJob[id] = []model.MatchResult{
		model.MatchResult(`{"id":"g1","html_url":"https://gist.github.com/g1"}`),
	}

	resp, err := http.Get(fx.server.URL + "/api/v1/search_result/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "SUCCESS", body["status"])
	assert.Equal(t, "octocat", body["username"])
	assert.Equal(t, "needle", body["pattern"])

	matches, ok := body["matches"].([]any)
	require.True(t, ok)
	require.Len(t, matches, 1)
	gist, ok := matches[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "g1", gist["id"])
}

func TestGetSearchResultsPendingJobHasEmptyMatches(t *testing.T) {
	fx := newAPIFixture(t)
	id := uuid.NewString()
	fx.jobs.jobs[id] = &model.SearchJob{ID: id, Username: "octocat", Pattern: "x", Status: model.StatusPending}

	resp, err := http.Get(fx.server.URL + "/api/v1/search_result/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	matches, ok := body["matches"].([]any)
	require.True(t, ok)
	assert.Empty(t, matches)
}

func TestGetSearchResultsUnknownJob(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.server.URL + "/api/v1/search_result/" + uuid.NewString())
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.server.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(fx.server.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])

	resp, err = http.Head(fx.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitSearchMethodNotAllowed(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.server.URL + "/api/v1/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
