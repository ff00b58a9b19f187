package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reviewbot",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewbot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewbot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	reviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewbot",
			Subsystem: "reviews",
			Name:      "runs_total",
			Help:      "Total number of merge request reviews by outcome.",
		},
		[]string{"status"},
	)

	reviewDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewbot",
			Subsystem: "reviews",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of merge request reviews.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4m
		},
		[]string{"status"},
	)

	commentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewbot",
			Subsystem: "reviews",
			Name:      "comments_total",
			Help:      "Total number of review comments produced, by severity.",
		},
		[]string{"severity"},
	)

	chunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reviewbot",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of guideline chunks embedded and stored.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		reviewsTotal,
		reviewDuration,
		commentsTotal,
		chunksIngested,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordReview records the outcome and duration of one review run.
func RecordReview(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	reviewsTotal.WithLabelValues(status).Inc()
	reviewDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordComment counts one produced review comment by severity.
func RecordComment(severity string) {
	if severity == "" {
		severity = "info"
	}
	commentsTotal.WithLabelValues(severity).Inc()
}

// RecordChunksIngested counts guideline chunks written to the vector store.
func RecordChunksIngested(n int) {
	if n > 0 {
		chunksIngested.Add(float64(n))
	}
}

// canonicalPath collapses id-bearing paths so the path label stays
// low-cardinality.
func canonicalPath(path string) string {
	if strings.HasPrefix(path, "/api/v1/jobs/") {
		return "/api/v1/jobs/{id}"
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
