package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_requests_total",
		Help: "Total request attempts by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_request_duration_seconds",
		Help:    "Request attempt duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 120},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_errors_total",
		Help: "Total request failures by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_retries_total",
		Help: "Total number of retry attempts by error code",
	}, []string{"code"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_retry_backoff_seconds",
		Help:    "Backoff duration before a retry",
		Buckets: []float64{0.5, 1, 2, 3, 5, 10},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_retry_exhausted_total",
		Help: "Total number of calls that exhausted their retry attempts",
	})

	poolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fetch_pool_in_use",
		Help: "Connection pool slots currently leased by scheme",
	}, []string{"scheme"})

	poolAcquireWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_pool_acquire_wait_seconds",
		Help:    "Time spent queued for a connection pool slot by scheme",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	}, []string{"scheme"})

	poolHoldSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_pool_hold_seconds",
		Help:    "Time a connection pool slot stays leased by scheme",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"scheme"})
)
