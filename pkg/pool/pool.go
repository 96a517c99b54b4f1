// Package pool drives parallel CEP fetches across a fixed set of
// workers and partitions the outcomes. Completion order is not
// deterministic; partition membership is.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/viacep"
)

// progressEvery controls how often worker progress is logged.
const progressEvery = 50

// Pool fans CEPs out to a fixed number of workers, each repeatedly
// pulling a key and invoking the fetcher.
type Pool struct {
	fetcher viacep.Fetcher
	workers int
}

// New creates a pool. A worker count below one is clamped to one.
func New(fetcher viacep.Fetcher, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		fetcher: fetcher,
		workers: workers,
	}
}

// Run fetches every CEP and blocks until all workers drain the queue.
// Every input key appears in exactly one of the returned partitions.
// A single key's failure never aborts sibling workers.
func (p *Pool) Run(ctx context.Context, ceps []string) ([]viacep.Success, []viacep.Failure) {
	start := time.Now()

	log.Info().
		Int("ceps", len(ceps)).
		Int("workers", p.workers).
		Msg("Starting parallel CEP fetch")

	queue := make(chan string, len(ceps))
	for _, cep := range ceps {
		queue <- cep
	}
	close(queue)

	collector := NewCollector()
	var (
		wg        sync.WaitGroup
		completed atomic.Int64
	)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, queue, collector, &wg, &completed, len(ceps))
	}
	wg.Wait()

	succeeded, failed := collector.Drain()

	log.Info().
		Int("succeeded", len(succeeded)).
		Int("failed", len(failed)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return succeeded, failed
}

// worker pulls CEPs from the queue until it is empty.
func (p *Pool) worker(ctx context.Context, workerID int, queue <-chan string, collector *Collector, wg *sync.WaitGroup, completed *atomic.Int64, total int) {
	defer wg.Done()
	processed := 0

	for cep := range queue {
		outcome := p.fetcher.Fetch(ctx, cep)
		collector.Record(outcome)
		processed++

		if done := completed.Add(1); done%progressEvery == 0 {
			log.Info().
				Int64("fetched", done).
				Int("total", total).
				Float64("progress_pct", float64(done)/float64(total)*100).
				Msg("Fetch progress")
		}
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("ceps_processed", processed).
			Msg("Worker completed")
	}
}
