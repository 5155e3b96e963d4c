package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks reads answered by a tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"tier"}, // "raw", "parsed"
	)

	// CacheMisses tracks reads that found nothing
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"tier"},
	)

	// CacheWrites tracks new entries written to a tier
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cache_writes_total",
			Help: "Total number of page cache entries written",
		},
		[]string{"tier"},
	)

	// CacheSize tracks bytes written by this process per tier
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvest_cache_size_bytes",
			Help: "Bytes written to the page cache by this process",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "prepare", "read", "write", "stat"
	)
)
