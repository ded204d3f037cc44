// Package metrics exposes Prometheus collectors for the site-cloner service.
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
	assetFetchesTotal          *prometheus.CounterVec
	assetBytesTotal            *prometheus.CounterVec
	uploadsTotal               *prometheus.CounterVec
	rewriteLinksTotal          *prometheus.CounterVec
	imagesOptimizedTotal       prometheus.Counter
	renderPromotionsTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	jobDurationSeconds         *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		assetFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecloner_asset_fetches_total",
				Help: "Total number of asset fetches, labeled by asset kind and result.",
			},
			[]string{"kind", "result"},
		)

		assetBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecloner_asset_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecloner_uploads_total",
				Help: "Total number of content store writes, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		rewriteLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecloner_rewrite_links_total",
				Help: "Links touched by the content rewriter, labeled by action.",
			},
			[]string{"action"},
		)

		imagesOptimizedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecloner_images_optimized_total",
				Help: "Total number of images downsampled before publishing.",
			},
		)

		renderPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecloner_render_promotions_total",
				Help: "Root documents sent to the headless renderer, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecloner_jobs_total",
				Help: "Total number of clone jobs finished, labeled by final status.",
			},
			[]string{"status"},
		)

		jobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecloner_job_duration_seconds",
				Help:    "Wall time of clone jobs, labeled by final status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitecloner_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecloner_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAssetFetch records one asset fetch and the bytes it returned.
func ObserveAssetFetch(site, kind, result string, bytesFetched int64) {
	if assetFetchesTotal == nil {
		return
	}
	assetFetchesTotal.WithLabelValues(kind, result).Inc()
	if bytesFetched > 0 {
		assetBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveUpload records a content store write.
func ObserveUpload(backend, result string) {
	if uploadsTotal == nil {
		return
	}
	uploadsTotal.WithLabelValues(backend, result).Inc()
}

// ObserveRewrite adds n link actions ("neutralized", "preserved", "contact",
// "phone", "tracking", "cleanup").
func ObserveRewrite(action string, n int) {
	if rewriteLinksTotal == nil || n <= 0 {
		return
	}
	rewriteLinksTotal.WithLabelValues(action).Add(float64(n))
}

// ObserveImageOptimized counts a downsampled image.
func ObserveImageOptimized() {
	if imagesOptimizedTotal == nil {
		return
	}
	imagesOptimizedTotal.Inc()
}

// ObserveRenderPromotion records a headless render attempt.
func ObserveRenderPromotion(outcome string) {
	if renderPromotionsTotal == nil {
		return
	}
	renderPromotionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter and duration for the final status.
func ObserveJob(status string, duration time.Duration) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
	jobDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
