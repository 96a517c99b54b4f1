package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Spacer enforces a minimum gap between consecutive requests on top of
// the sliding-window ceiling. The window guarantees the hard limit;
// the spacer smooths bursts so admissions do not cluster at the start
// of each window.
type Spacer struct {
	limiter *rate.Limiter
}

// NewSpacer creates a spacer allowing one request per minGap. A zero
// or negative gap returns nil, which Wait treats as a no-op.
func NewSpacer(minGap time.Duration) *Spacer {
	if minGap <= 0 {
		return nil
	}
	return &Spacer{
		limiter: rate.NewLimiter(rate.Every(minGap), 1),
	}
}

// Wait blocks until the minimum gap since the previous request has
// elapsed, or the context is cancelled.
func (s *Spacer) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}
