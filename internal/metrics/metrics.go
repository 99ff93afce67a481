// Package metrics exposes Prometheus collectors for the enrichment
// pipeline: job queue depth, rate gate wait times, crawl outcomes, and the
// HTTP API surface.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	jobsTotal        *prometheus.CounterVec
	jobDurationSecs  *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
	activeWorkers    prometheus.Gauge

	rateLimitWaitSeconds *prometheus.HistogramVec
	pagesFetchedTotal    *prometheus.CounterVec
	pageBytesTotal       *prometheus.CounterVec

	embeddingsWrittenTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors. Safe to call
// multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "venuescout_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_jobs_total",
				Help: "Total number of crawl jobs processed, labeled by mode and terminal state.",
			},
			[]string{"mode", "state"},
		)

		jobDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "venuescout_job_duration_seconds",
				Help:    "Histogram of crawl job durations from claim to terminal state.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 8},
			},
			[]string{"mode"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "venuescout_queue_depth",
				Help: "Current job queue depth, labeled by state.",
			},
			[]string{"state"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "venuescout_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "venuescout_rate_limit_wait_seconds",
				Help:    "Histogram of Rate Gate admission wait durations, labeled by host.",
				Buckets: []float64{0, 0.05, 0.25, 1, 3, 10, 30},
			},
			[]string{"host"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_pages_fetched_total",
				Help: "Total number of page fetch attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_page_bytes_total",
				Help: "Total bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		embeddingsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "venuescout_embeddings_written_total",
				Help: "Total number of embedding vectors written to the store.",
			},
		)
	})
}

// SanitizeSite reduces a URL to a lowercase hostname for use as a metric
// label, returning "unknown" if the URL cannot be parsed.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one HTTP API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob records one crawl job reaching a terminal state.
func ObserveJob(mode, state string, duration time.Duration) {
	jobsTotal.WithLabelValues(mode, state).Inc()
	jobDurationSecs.WithLabelValues(mode).Observe(duration.Seconds())
}

// SetQueueDepth publishes the current queue depth for a job state.
func SetQueueDepth(state string, depth int) {
	queueDepth.WithLabelValues(state).Set(float64(depth))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() { activeWorkers.Inc() }

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() { activeWorkers.Dec() }

// ObserveRateLimitWait records how long a fetch waited for Rate Gate
// admission.
func ObserveRateLimitWait(host string, wait time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(SanitizeSite(host)).Observe(wait.Seconds())
}

// ObservePageFetch records the outcome of one page fetch attempt.
func ObservePageFetch(host, outcome string, bytesFetched int) {
	site := SanitizeSite(host)
	pagesFetchedTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveEmbeddingWritten increments the embeddings-written counter.
func ObserveEmbeddingWritten() {
	embeddingsWrittenTotal.Inc()
}
