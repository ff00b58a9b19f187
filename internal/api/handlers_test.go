package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reviewbot/internal/infra"
	"reviewbot/internal/jobs"
	"reviewbot/internal/tasks"
)

type fakeEnqueuer struct {
	payloads []tasks.ReviewTaskPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueReviewTask(payload tasks.ReviewTaskPayload) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1"}, f.err
}

type fakeRunner struct {
	ran chan tasks.ReviewTaskPayload
}

func (f *fakeRunner) RunReview(ctx context.Context, payload tasks.ReviewTaskPayload) error {
	f.ran <- payload
	return nil
}

type fakeJobRepo struct {
	created []uuid.UUID
	failed  map[uuid.UUID]string
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{failed: map[uuid.UUID]string{}}
}

func (f *fakeJobRepo) Create(ctx context.Context, projectID, mrIID int64) (uuid.UUID, error) {
	id := uuid.New()
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	f.failed[id] = errText
	return nil
}

func (f *fakeJobRepo) Get(ctx context.Context, id uuid.UUID) (*jobs.ReviewJob, error) {
	return nil, jobs.ErrNotFound
}

func (f *fakeJobRepo) List(ctx context.Context, limit int) ([]jobs.ReviewJob, error) {
	return nil, nil
}

func testConfig(secret string) *infra.Config {
	cfg := &infra.Config{}
	cfg.Ollama.LLMModel = "qwen2.5-coder:7b"
	cfg.Ollama.EmbedModel = "nomic-embed-text"
	cfg.GitLab.WebhookSecret = secret
	return cfg
}

func newTestServer(cfg *infra.Config, enqueuer TaskEnqueuer, runner ReviewRunner) *httptest.Server {
	handlers := NewHandlers(zap.NewNop(), cfg, enqueuer, runner, nil)
	return httptest.NewServer(Router(zap.NewNop(), handlers))
}

const mrEvent = `{
  "object_kind": "merge_request",
  "project": {"id": 42},
  "object_attributes": {"iid": 7, "action": "open"}
}`

func postWebhook(t *testing.T, url, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/webhook", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Gitlab-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(testConfig(""), &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "qwen2.5-coder:7b", body["model"])
	assert.Equal(t, "nomic-embed-text", body["embed_model"])
}

func TestWebhookInvalidToken(t *testing.T) {
	srv := newTestServer(testConfig("s3cret"), &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, mrEvent, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookValidTokenAccepted(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(testConfig("s3cret"), enq, nil)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, mrEvent, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "accepted", body["status"])
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, int64(42), enq.payloads[0].ProjectID)
	assert.Equal(t, int64(7), enq.payloads[0].MRIID)
}

func TestWebhookNoSecretSkipsTokenCheck(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(testConfig(""), enq, nil)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, mrEvent, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", decodeBody(t, resp)["status"])
}

func TestWebhookIgnoresNonMergeRequestEvents(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(testConfig(""), enq, nil)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, `{"object_kind": "push"}`, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ignored", body["status"])
	assert.Contains(t, body["reason"], "not a merge_request")
	assert.Empty(t, enq.payloads)
}

func TestWebhookIgnoresNonReviewableActions(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(testConfig(""), enq, nil)
	defer srv.Close()

	event := `{
	  "object_kind": "merge_request",
	  "project": {"id": 42},
	  "object_attributes": {"iid": 7, "action": "close"}
	}`
	resp := postWebhook(t, srv.URL, event, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ignored", body["status"])
	assert.Contains(t, body["reason"], "close")
	assert.Empty(t, enq.payloads)
}

func TestWebhookMissingIDs(t *testing.T) {
	srv := newTestServer(testConfig(""), &fakeEnqueuer{}, nil)
	defer srv.Close()

	event := `{
	  "object_kind": "merge_request",
	  "object_attributes": {"action": "open"}
	}`
	resp := postWebhook(t, srv.URL, event, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookMalformedJSON(t *testing.T) {
	srv := newTestServer(testConfig(""), &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, "{not json", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookFallsBackToInProcessRunner(t *testing.T) {
	runner := &fakeRunner{ran: make(chan tasks.ReviewTaskPayload, 1)}
	srv := newTestServer(testConfig(""), nil, runner)
	defer srv.Close()

	resp := postWebhook(t, srv.URL, mrEvent, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", decodeBody(t, resp)["status"])

	select {
	case payload := <-runner.ran:
		assert.Equal(t, int64(42), payload.ProjectID)
	case <-time.After(time.Second):
		t.Fatal("background review was not started")
	}
}

func TestWebhookEnqueueFailureMarksJobFailed(t *testing.T) {
	enq := &fakeEnqueuer{err: fmt.Errorf("redis unreachable")}
	repo := newFakeJobRepo()
	handlers := NewHandlers(zap.NewNop(), testConfig(""), enq, nil, repo)
	srv := httptest.NewServer(Router(zap.NewNop(), handlers))
	defer srv.Close()

	resp := postWebhook(t, srv.URL, mrEvent, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()

	require.Len(t, repo.created, 1)
	assert.Contains(t, repo.failed[repo.created[0]], "redis unreachable")
}

func TestJobsEndpointWithoutRepo(t *testing.T) {
	srv := newTestServer(testConfig(""), &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
