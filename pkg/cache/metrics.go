package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for lookup cache operations.
var (
	lookupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cep_cache_hits_total",
		Help: "Total lookup cache hits",
	})

	lookupMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cep_cache_misses_total",
		Help: "Total lookup cache misses",
	})

	lookupErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cep_cache_errors_total",
		Help: "Total lookup cache errors by operation",
	}, []string{"operation"})
)
