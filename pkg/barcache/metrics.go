package barcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks loads served from the cache by store (file, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barcache_hits_total",
			Help: "Total number of bar cache hits",
		},
		[]string{"store"},
	)

	// CacheMisses tracks loads of days that are not cached
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barcache_misses_total",
			Help: "Total number of bar cache misses",
		},
		[]string{"store"},
	)

	// BytesWritten tracks the encoded size of saved days
	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barcache_bytes_written_total",
			Help: "Total bytes of bar data written to the cache",
		},
		[]string{"store"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barcache_errors_total",
			Help: "Total number of bar cache operation errors",
		},
		[]string{"store", "operation"}, // "load", "save", "delete", "keys"
	)

	// DaysBuilt tracks days fetched and saved by the builder
	DaysBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barcache_days_built_total",
			Help: "Total number of symbol-days fetched and cached by the builder",
		},
	)

	// DaysPruned tracks empty days removed by Prune
	DaysPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barcache_days_pruned_total",
			Help: "Total number of empty symbol-days removed from the cache",
		},
	)
)
