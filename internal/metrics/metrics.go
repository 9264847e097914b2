// Package metrics exposes Prometheus collectors for the article picker.
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
	archivePagesTotal          *prometheus.CounterVec
	articlesExtractedTotal     prometheus.Counter
	bookmarkLookupsTotal       *prometheus.CounterVec
	selectionsTotal            *prometheus.CounterVec
	cacheReadsTotal            *prometheus.CounterVec
	toolCallsTotal             *prometheus.CounterVec
	toolCallDurationSeconds    *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archivePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepicker_archive_pages_total",
				Help: "Archive pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		articlesExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "articlepicker_articles_extracted_total",
				Help: "Articles extracted from archive pages.",
			},
		)

		bookmarkLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepicker_bookmark_lookups_total",
				Help: "Bookmark count lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		selectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepicker_selections_total",
				Help: "Weighted selections, labeled by branch.",
			},
			[]string{"branch"},
		)

		cacheReadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepicker_cache_reads_total",
				Help: "Snapshot cache reads, labeled by result.",
			},
			[]string{"result"},
		)

		toolCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articlepicker_tool_calls_total",
				Help: "Tool invocations, labeled by tool and status.",
			},
			[]string{"tool", "status"},
		)

		toolCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "articlepicker_tool_call_duration_seconds",
				Help:    "Histogram of tool call latencies, labeled by tool.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"tool"},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "articlepicker_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
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

// ObserveArchivePage records one archive page fetch and the articles it yielded.
func ObserveArchivePage(site, status string, extracted int) {
	Init()
	archivePagesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
	if extracted > 0 {
		articlesExtractedTotal.Add(float64(extracted))
	}
}

// ObserveBookmarkLookup increments the lookup counter for the given outcome.
func ObserveBookmarkLookup(outcome string) {
	Init()
	bookmarkLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSelection increments the selection counter for the given branch.
func ObserveSelection(branch string) {
	Init()
	selectionsTotal.WithLabelValues(branch).Inc()
}

// ObserveCacheRead increments the cache read counter for the given result.
func ObserveCacheRead(result string) {
	Init()
	cacheReadsTotal.WithLabelValues(result).Inc()
}

// ObserveToolCall records one tool invocation.
func ObserveToolCall(tool, status string, duration time.Duration) {
	Init()
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolCallDurationSeconds.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
