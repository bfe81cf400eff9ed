// Package metrics exposes the Prometheus registry shared by marketbars.
// All metrics are defined in their respective packages (fetch, barcache, ratelimit)
// to maintain modularity and avoid circular dependencies.
//
// This package provides the scrape handler and a reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by marketbars.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// HTTP Core Metrics (pkg/fetch):
//   - fetch_requests_total{method, status} (Counter): Completed attempts by method and HTTP status
//   - fetch_request_duration_seconds{method} (Histogram): Attempt duration
//   - fetch_errors_total{class} (Counter): Failures by class (transport_reset, protocol, jar, retry_exhausted)
//   - fetch_retries_total{code} (Counter): Retries by transport error code
//   - fetch_retry_backoff_seconds (Histogram): Wait before each retry
//   - fetch_retry_exhausted_total (Counter): Calls that used up every retry
//   - fetch_pool_in_use{scheme} (Gauge): Admitted requests per scheme
//   - fetch_pool_acquire_wait_seconds{scheme} (Histogram): Time queued for admission
//   - fetch_pool_hold_seconds{scheme} (Histogram): Time between admission and release
//
// Rate Limit Metrics (pkg/ratelimit):
//   - marketbars_rate_limit_remaining (Gauge): Requests left in the API quota window
//   - marketbars_rate_limit_blocks_total (Counter): Requests held until the quota reset
//   - marketbars_rate_limit_throttles_total (Counter): Requests delayed on a low quota
//
// Bar Cache Metrics (pkg/barcache):
//   - barcache_hits_total{store} (Counter): Loads served from the cache
//   - barcache_misses_total{store} (Counter): Loads of days not cached
//   - barcache_bytes_written_total{store} (Counter): Encoded bytes saved
//   - barcache_errors_total{store, operation} (Counter): Cache operation errors
//   - barcache_days_built_total (Counter): Symbol-days fetched by the builder
//   - barcache_days_pruned_total (Counter): Empty symbol-days removed
//
// Example Prometheus Queries:
//
//   # Retry Rate
//   rate(fetch_retries_total[5m]) / rate(fetch_requests_total[5m])
//
//   # Quota Status
//   marketbars_rate_limit_remaining < 20
//
//   # P95 Admission Wait
//   histogram_quantile(0.95, rate(fetch_pool_acquire_wait_seconds_bucket[5m]))
//
//   # Build Throughput
//   rate(barcache_days_built_total[15m])
