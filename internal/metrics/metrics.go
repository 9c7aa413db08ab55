// Package metrics exposes Prometheus collectors for the dashboard service.
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

// Outcome labels shared by the fetch, geocode and loader collectors.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeEmpty   = "empty"
)

var (
	upstreamFetchTotal         *prometheus.CounterVec
	upstreamBytesTotal         *prometheus.CounterVec
	headlessPromotionsTotal    prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	geocodeRequestsTotal       *prometheus.CounterVec
	geocodeCacheTotal          *prometheus.CounterVec
	loaderSourceTotal          *prometheus.CounterVec
	datasetRows                *prometheus.GaugeVec
	lastRefreshTimestamp       prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hkcovid_upstream_fetch_total",
				Help: "Total upstream fetches, labeled by dataset and outcome.",
			},
			[]string{"dataset", "outcome"},
		)

		upstreamBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hkcovid_upstream_bytes_total",
				Help: "Total bytes fetched from the upstream site, labeled by dataset.",
			},
			[]string{"dataset"},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hkcovid_headless_promotions_total",
				Help: "Total pages re-fetched through the headless browser.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hkcovid_http_requests_total",
				Help: "Dashboard HTTP requests, labeled by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		geocodeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hkcovid_geocode_requests_total",
				Help: "Total geocoding attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		geocodeCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hkcovid_geocode_cache_total",
				Help: "Geocoder cache lookups, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)

		loaderSourceTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hkcovid_loader_source_total",
				Help: "Dataset loads per source, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		datasetRows = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hkcovid_dataset_rows",
				Help: "Rows in the current dataset snapshot, labeled by table.",
			},
			[]string{"table"},
		)

		lastRefreshTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hkcovid_last_refresh_timestamp_seconds",
				Help: "Unix time of the last successful dataset refresh.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hkcovid_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
	})
}

// HostLabel reduces a URL to the lowercase hostname used as a metric label,
// or "unknown" when no host can be parsed.
func HostLabel(rawURL string) string {
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

// ObserveFetch records one upstream fetch.
func ObserveFetch(dataset, outcome string, bytesFetched int) {
	Init()
	upstreamFetchTotal.WithLabelValues(dataset, outcome).Inc()
	if bytesFetched > 0 {
		upstreamBytesTotal.WithLabelValues(dataset).Add(float64(bytesFetched))
	}
}

// ObserveHeadlessPromotion counts a page re-rendered through chromedp.
func ObserveHeadlessPromotion() {
	Init()
	headlessPromotionsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveGeocode records one provider call.
func ObserveGeocode(provider, outcome string) {
	Init()
	geocodeRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveGeocodeCache records a cache hit or miss.
func ObserveGeocodeCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	geocodeCacheTotal.WithLabelValues(result).Inc()
}

// ObserveSourceLoad records the outcome of one loader source.
func ObserveSourceLoad(source, outcome string) {
	Init()
	loaderSourceTotal.WithLabelValues(source, outcome).Inc()
}

// SetDatasetRows publishes table sizes of the current snapshot.
func SetDatasetRows(counts map[string]int, refreshedAt time.Time) {
	Init()
	for table, n := range counts {
		datasetRows.WithLabelValues(table).Set(float64(n))
	}
	lastRefreshTimestamp.Set(float64(refreshedAt.Unix()))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
