package stream

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle wraps a Sink with a rate limit. Sends block until the limiter
// admits them, so update order is preserved at the cost of latency. Useful in
// front of network-backed sinks when workflows emit levels faster than
// consumers can render them.
type Throttle struct {
	sink    Sink
	limiter *rate.Limiter
}

// NewThrottle wraps sink so at most limit updates per second pass through,
// with the given burst.
func NewThrottle(sink Sink, limit rate.Limit, burst int) *Throttle {
	return &Throttle{sink: sink, limiter: rate.NewLimiter(limit, burst)}
}

// Send waits for the rate limiter, then forwards the update.
func (t *Throttle) Send(ctx context.Context, u *Update) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.sink.Send(ctx, u)
}

// Close closes the wrapped sink.
func (t *Throttle) Close() error { return t.sink.Close() }
