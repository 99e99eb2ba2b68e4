// Package metrics exposes Prometheus collectors for the acquisition pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	artifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nidus_artifacts_total",
			Help: "Total number of artifacts processed, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nidus_bytes_total",
			Help: "Total number of bytes stored, labeled by source.",
		},
		[]string{"source"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nidus_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies, labeled by site.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nidus_retries_total",
			Help: "Total number of retried operations.",
		},
	)

	manifestRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nidus_manifest_records_total",
			Help: "Total number of rows appended to the manifest.",
		},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nidus_active_workers",
			Help: "Number of pool workers currently inside a handler.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nidus_rate_limit_delay_seconds",
			Help:    "Time spent waiting on per-host rate limits, labeled by host.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"host"},
	)

	discoveredPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nidus_discovered_pages_total",
			Help: "Total number of candidate pages collected by link discovery, labeled by domain.",
		},
		[]string{"domain"},
	)
)

// Outcome labels for ObserveArtifact.
const (
	OutcomeStored      = "stored"
	OutcomeFailed      = "failed"
	OutcomeNotModified = "not_modified"
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// ObserveArtifact counts an artifact outcome and the bytes stored for it.
func ObserveArtifact(source, outcome string, size int) {
	artifactsTotal.WithLabelValues(source, outcome).Inc()
	if size > 0 {
		bytesTotal.WithLabelValues(source).Add(float64(size))
	}
}

// ObserveFetch records how long a fetch of rawURL took.
func ObserveFetch(rawURL string, d time.Duration) {
	fetchDurationSeconds.WithLabelValues(SanitizeSite(rawURL)).Observe(d.Seconds())
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	retriesTotal.Inc()
}

// ObserveManifestRecord increments the manifest row counter.
func ObserveManifestRecord() {
	manifestRecordsTotal.Inc()
}

// ObserveDiscovered adds n collected pages for domain.
func ObserveDiscovered(domain string, n int) {
	discoveredPagesTotal.WithLabelValues(domain).Add(float64(n))
}

// ObserveRateLimitDelay records time spent blocked on a host's limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// Handler returns a router exposing /metrics and /healthz.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
