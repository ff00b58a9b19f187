package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/webhook", "/webhook"},
		{"/api/v1/jobs", "/api/v1/jobs"},
		{"/api/v1/jobs/0d9c9c2e-9a1b-4c3d-8e5f-6a7b8c9d0e1f", "/api/v1/jobs/{id}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonicalPath(tt.path))
	}
}

func TestInstrumentHandlerRecordsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Contains(t, scrape(t),
		`reviewbot_http_requests_total{method="GET",path="/teapot",status="418"}`)
}

func TestInstrumentHandlerDefaultsTo200(t *testing.T) {
	// Handlers that only write a body never call WriteHeader.
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/implicit", nil))

	assert.Contains(t, scrape(t),
		`reviewbot_http_requests_total{method="GET",path="/implicit",status="200"}`)
}

func TestInstrumentHandlerSkipsMetricsEndpoint(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.NotContains(t, scrape(t), `path="/metrics"`)
}

func TestReviewMetricsExposedViaHandler(t *testing.T) {
	RecordReview("completed", 2*time.Second)
	RecordReview("failed", time.Second)
	RecordComment("critical")
	RecordComment("")

	body := scrape(t)
	assert.Contains(t, body, `reviewbot_reviews_runs_total{status="completed"}`)
	assert.Contains(t, body, `reviewbot_reviews_runs_total{status="failed"}`)
	assert.Contains(t, body, `reviewbot_reviews_duration_seconds_count{status="completed"}`)
	assert.Contains(t, body, `reviewbot_reviews_comments_total{severity="critical"}`)
	assert.Contains(t, body, `reviewbot_reviews_comments_total{severity="info"}`)
}

func TestRecordChunksIngestedIgnoresNonPositive(t *testing.T) {
	RecordChunksIngested(3)
	RecordChunksIngested(0)
	RecordChunksIngested(-1)

	assert.Contains(t, scrape(t), "reviewbot_ingest_chunks_total 3")
}
