package viacep

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// OfflineFetcher is a drop-in replacement for Client that returns
// synthetic payloads without contacting any external service. It is
// used to exercise the worker pool and rate governor offline, so the
// rate ceiling can be lifted entirely in this mode.
type OfflineFetcher struct {
	// FailureRatio in [0,1) controls how many CEPs resolve to a
	// NotFound failure. Default 0.2 matches the historical mock.
	FailureRatio float64

	// MinLatency and MaxLatency bound the simulated network delay.
	MinLatency time.Duration
	MaxLatency time.Duration

	// Deterministic derives the outcome from a hash of the CEP, so
	// re-running the same key set yields the same partitions.
	Deterministic bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewOfflineFetcher returns an offline fetcher with deterministic
// outcomes and the historical latency envelope.
func NewOfflineFetcher() *OfflineFetcher {
	return &OfflineFetcher{
		FailureRatio:  0.2,
		MinLatency:    200 * time.Millisecond,
		MaxLatency:    1500 * time.Millisecond,
		Deterministic: true,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch simulates one lookup with latency and the configured failure
// ratio. Malformed CEPs fail exactly as they would against the live
// service.
func (f *OfflineFetcher) Fetch(ctx context.Context, rawCEP string) Outcome {
	cep, ok := NormalizeCEP(rawCEP)
	if !ok {
		return newFailure(rawCEP, CategoryInvalidKey, "malformed CEP: want 8 numeric digits", 1)
	}

	if delay := f.latencyFor(cep); delay > 0 {
		select {
		case <-ctx.Done():
			return newFailure(cep, CategoryTransportError, "cancelled", 1)
		case <-time.After(delay):
		}
	}

	if f.rollFor(cep) < f.FailureRatio {
		return newFailure(cep, CategoryNotFound, "CEP does not exist", 1)
	}

	return Outcome{Success: &Success{
		CEP: cep,
		Fields: map[string]string{
			"cep":        cep[:5] + "-" + cep[5:],
			"logradouro": "Rua Fictícia",
			"bairro":     "Bairro Fictício",
			"localidade": "Cidade Fictícia",
			"uf":         "SP",
		},
		Attempts: 1,
	}}
}

// rollFor returns a value in [0,1) deciding success vs failure.
func (f *OfflineFetcher) rollFor(cep string) float64 {
	if f.Deterministic {
		h := fnv.New32a()
		h.Write([]byte(cep))
		return float64(h.Sum32()%1000) / 1000
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64()
}

// latencyFor picks a simulated delay inside the configured envelope.
func (f *OfflineFetcher) latencyFor(cep string) time.Duration {
	span := f.MaxLatency - f.MinLatency
	if span <= 0 {
		return f.MinLatency
	}

	if f.Deterministic {
		h := fnv.New32a()
		h.Write([]byte("latency:" + cep))
		return f.MinLatency + time.Duration(uint64(h.Sum32())%uint64(span))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.MinLatency + time.Duration(f.rng.Int63n(int64(span)))
}
