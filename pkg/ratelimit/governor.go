// Package ratelimit implements the sliding-window admission controller
// that keeps the aggregate request rate under the external service's
// ceiling. It is the sole authority on whether one more outbound
// request may be sent now.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for admission control.
var (
	cepAdmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cep_rate_admissions_total",
		Help: "Total requests admitted by the rate governor",
	})

	cepAdmissionWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cep_rate_admission_wait_seconds",
		Help:    "Time spent waiting for a rate slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	cepRateWindowOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cep_rate_window_occupancy",
		Help: "Admissions currently inside the sliding window",
	})
)

// Governor admits at most Limit requests in any trailing Window
// interval. All mutation of the window happens under an exclusive
// lock; the lock is never held across a sleep.
type Governor struct {
	limit  int
	window time.Duration
	logger zerolog.Logger

	mu        sync.Mutex
	admitted  []time.Time
	clock     func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor admitting limit requests per trailing
// window. A limit <= 0 disables the ceiling entirely, which is the
// expected configuration in offline mode.
func NewGovernor(limit int, window time.Duration, logger zerolog.Logger) *Governor {
	return &Governor{
		limit:     limit,
		window:    window,
		logger:    logger,
		clock:     time.Now,
		sleepFunc: sleepCtx,
	}
}

// Acquire blocks until admitting one more request would not exceed the
// ceiling, records the admission, and returns its timestamp. It returns
// early with the context's error if ctx is cancelled while waiting.
func (g *Governor) Acquire(ctx context.Context) (time.Time, error) {
	if g.limit <= 0 {
		return g.clock(), nil
	}

	start := g.clock()

	for {
		g.mu.Lock()
		now := g.clock()
		g.evict(now)

		if len(g.admitted) < g.limit {
			g.admitted = append(g.admitted, now)
			occupancy := len(g.admitted)
			g.mu.Unlock()

			cepAdmissionsTotal.Inc()
			cepRateWindowOccupancy.Set(float64(occupancy))
			if wait := now.Sub(start); wait > 0 {
				cepAdmissionWaitSeconds.Observe(wait.Seconds())
			}
			return now, nil
		}

		// Window full: wait until the oldest admission leaves it.
		// The sleep happens outside the lock so other callers can
		// still run their own eviction checks.
		sleepFor := g.window - now.Sub(g.admitted[0])
		g.mu.Unlock()

		g.logger.Debug().
			Dur("sleep_for", sleepFor).
			Int("limit", g.limit).
			Msg("Rate window full - waiting for slot")

		if err := g.sleepFunc(ctx, sleepFor); err != nil {
			return time.Time{}, err
		}
	}
}

// evict drops admissions older than the window. Callers must hold g.mu.
func (g *Governor) evict(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.admitted) && !g.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.admitted = g.admitted[i:]
	}
}

// Occupancy returns the number of admissions currently inside the
// window. Intended for tests and diagnostics.
func (g *Governor) Occupancy() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evict(g.clock())
	return len(g.admitted)
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
