package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	llmclient "prsentry/internal/llmClient"
)

// Timeout races each call against a hard wall-clock deadline. A deadline
// hit is surfaced as a PermanentError so retry layers stop immediately.
func Timeout(d time.Duration) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if d <= 0 {
			return next
		}
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next llmclient.Client
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }

func (t *timed) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	resp, err := t.next.GenerateJSON(cctx, system, prompt)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, llmclient.NewPermanentError(fmt.Errorf("llm request timeout after %s: %w", t.d, err))
	}
	return resp, err
}
