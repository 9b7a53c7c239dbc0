package broker

import (
	"context"

	"golang.org/x/time/rate"
)

// smoothingLimiter is a secondary guard the executor consults before
// every dispatch, independent of token-pool capacity: even a budget
// with remaining > 0 must not burst faster than a configured
// requests-per-second ceiling. Adapted from the proactive token-bucket
// throttle pattern in the retrieval pack's GitHub connector.
type smoothingLimiter struct {
	bucket *rate.Limiter
}

func newSmoothingLimiter(perSecond int) *smoothingLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &smoothingLimiter{bucket: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// wait blocks until dispatch may proceed or ctx is done.
func (l *smoothingLimiter) wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
