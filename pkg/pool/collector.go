package pool

import (
	"sync"

	"cep-pipeline/pkg/viacep"
)

// Collector is the thread-safe sink that partitions fetch outcomes.
// All workers record into it concurrently; Drain is called once after
// the pool joins.
type Collector struct {
	mu        sync.Mutex
	succeeded []viacep.Success
	failed    []viacep.Failure
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record appends the outcome to its partition. Outcomes with neither
// variant set are ignored; the fetcher contract excludes them.
func (c *Collector) Record(outcome viacep.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case outcome.Success != nil:
		c.succeeded = append(c.succeeded, *outcome.Success)
	case outcome.Failure != nil:
		c.failed = append(c.failed, *outcome.Failure)
	}
}

// Drain returns the accumulated partitions and resets the collector.
func (c *Collector) Drain() ([]viacep.Success, []viacep.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	succeeded, failed := c.succeeded, c.failed
	c.succeeded, c.failed = nil, nil
	return succeeded, failed
}
