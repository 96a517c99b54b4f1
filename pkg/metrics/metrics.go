// Package metrics documents the Prometheus metrics exposed by the CEP
// pipeline. All metrics are defined via promauto in their owning
// packages (ratelimit, viacep, cache) to keep ownership local; this
// package provides the registry reference and the catalogue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Governor (pkg/ratelimit):
//   - cep_rate_admissions_total (Counter): Requests admitted by the governor
//   - cep_rate_admission_wait_seconds (Histogram): Time spent waiting for a slot
//   - cep_rate_window_occupancy (Gauge): Admissions inside the sliding window
//
// Fetch Client (pkg/viacep):
//   - cep_requests_total{status} (Counter): Requests by HTTP status / cache_hit / network_error
//   - cep_request_duration_seconds (Histogram): End-to-end fetch duration per CEP
//   - cep_failures_total{category} (Counter): Terminal failures by category
//   - cep_retries_total{category} (Counter): Retry attempts by category
//   - cep_retry_backoff_seconds{category} (Histogram): Backoff duration between retries
//   - cep_retry_exhausted_total (Counter): CEPs that exhausted all attempts
//
// Lookup Cache (pkg/cache):
//   - cep_cache_hits_total (Counter): Lookup cache hits
//   - cep_cache_misses_total (Counter): Lookup cache misses
//   - cep_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Effective request rate against the external service
//   rate(cep_requests_total[1m])
//
//   # Share of lookups resolved from cache
//   sum(rate(cep_cache_hits_total[5m])) /
//   (sum(rate(cep_cache_hits_total[5m])) + sum(rate(cep_cache_misses_total[5m])))
//
//   # P95 admission wait (rate pressure)
//   histogram_quantile(0.95, rate(cep_rate_admission_wait_seconds_bucket[5m]))
//
//   # Failure rate by category
//   rate(cep_failures_total[5m])
