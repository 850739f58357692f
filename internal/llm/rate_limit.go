package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// callLimiter throttles outbound provider calls so bulk passes (summarizer,
// importance persistence) don't exhaust provider quotas. Waiting respects
// context cancellation.
type callLimiter struct {
	limiter *rate.Limiter
}

// newCallLimiter creates a limiter allowing reqPerSec sustained calls with
// the given burst. reqPerSec <= 0 disables limiting.
func newCallLimiter(reqPerSec float64, burst int) *callLimiter {
	if reqPerSec <= 0 {
		return &callLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &callLimiter{limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst)}
}

// wait blocks until a call slot is available or the context is done.
func (l *callLimiter) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
