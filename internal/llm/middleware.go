// Package llm decorates an llmclient.Client with cross-cutting concerns
// (rate limiting, timeouts, retries) as composable middleware.
package llm

import (
	"context"
	"encoding/json"

	llmclient "prsentry/internal/llmClient"
	"prsentry/internal/ratelimit"
)

// Middleware decorates a Client.
type Middleware func(llmclient.Client) llmclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.Client, mws ...Middleware) llmclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit limits request rate with a token bucket. If rps <= 0 the
// limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		return &rateLimited{next: next, rl: ratelimit.New(rps, burst)}
	}
}

type rateLimited struct {
	next llmclient.Client
	rl   *ratelimit.Bucket
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, system, prompt)
}
