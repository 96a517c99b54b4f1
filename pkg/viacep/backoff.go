package viacep

import (
	"math/rand"
	"time"
)

// backoffFor computes the sleep before retry attempt+1: exponential in
// the attempt count with +-20% jitter so concurrent workers do not
// re-synchronize their retries.
func backoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}

	jittered := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
	return jittered
}
