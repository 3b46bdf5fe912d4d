// Package ratelimit provides a lightweight token-bucket limiter shared by
// the worker pool and the LLM middleware.
package ratelimit

import (
	"context"
	"time"
)

// Bucket throttles to at most R acquisitions per second with an optional
// burst capacity. A nil *Bucket is a no-op limiter.
type Bucket struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// New creates a limiter that allows up to rps events per second with a
// burst capacity of 'burst'. If rps <= 0, the limiter is disabled and New
// returns nil.
func New(rps float64, burst int) *Bucket {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	b := &Bucket{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}

	// Pre-fill to allow an initial burst.
	for i := 0; i < burst; i++ {
		b.tokens <- struct{}{}
	}

	// Refill at the configured rate. Fractional rps yields a sub-second
	// period (e.g. 1.5 rps ≈ 666ms).
	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case b.tokens <- struct{}{}:
				default:
					// bucket full; drop token
				}
			case <-b.stopCh:
				return
			}
		}
	}()

	return b
}

// Acquire blocks until a token is available or the context is canceled.
func (b *Bucket) Acquire(ctx context.Context) error {
	if b == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stopCh:
		return context.Canceled
	case <-b.tokens:
		return nil
	}
}

// Stop terminates the refill goroutine.
func (b *Bucket) Stop() {
	if b == nil {
		return
	}
	close(b.stopCh)
}
