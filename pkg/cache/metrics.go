package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (file, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monscrape_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses by layer
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monscrape_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"layer"},
	)

	// CacheWrites tracks entries written by layer
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monscrape_cache_writes_total",
			Help: "Total number of page cache writes",
		},
		[]string{"layer"},
	)

	// CacheWrittenBytes tracks bytes written by layer
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monscrape_cache_written_bytes_total",
			Help: "Total bytes written to the page cache",
		},
		[]string{"layer"},
	)

	// CacheInvalidations tracks partition invalidations
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monscrape_cache_invalidations_total",
			Help: "Total number of partition invalidations",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monscrape_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"layer", "operation"}, // "exists", "get", "set", "invalidate", "scan", "lock"
	)
)

const (
	layerFile  = "file"
	layerRedis = "redis"
)
