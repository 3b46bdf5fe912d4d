// Package retry is the single retry-policy abstraction used across the
// pipeline. Components instantiate a Policy with their own attempt
// budget, backoff curve, and retryable-error predicate instead of
// hand-rolling loops per call site.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns the sleep before the next attempt. attempt is
// zero-based (the attempt that just failed); err is the failure, so
// server-provided hints (Retry-After) can override the curve.
type BackoffFunc func(attempt int, err error) time.Duration

// Policy describes one component's retry behavior.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff computes inter-attempt delays. Nil means no delay.
	Backoff BackoffFunc
	// Retryable reports whether a failure is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// Do runs op under the policy. It returns nil on the first success, the
// error immediately when Retryable rejects it, and the last error once
// the attempt budget is exhausted. Context cancellation interrupts
// backoff sleeps.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if p.Backoff == nil {
			continue
		}
		d := p.Backoff(attempt, err)
		if d <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return last
}

// Linear yields base, 2*base, 3*base, ...
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		return base * time.Duration(attempt+1)
	}
}

// Exponential yields base, 2*base, 4*base, ...
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		return base << attempt
	}
}
