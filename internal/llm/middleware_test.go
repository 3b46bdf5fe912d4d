package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmclient "prsentry/internal/llmClient"
)

// scripted returns one canned response per call.
type scripted struct {
	name  string
	calls int
	fn    func(call int, ctx context.Context) (json.RawMessage, error)
}

func (s *scripted) Name() string { return s.name }
func (s *scripted) Close() error { return nil }
func (s *scripted) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	s.calls++
	return s.fn(s.calls, ctx)
}

func TestWrap_Order(t *testing.T) {
	inner := &scripted{fn: func(int, context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	cli := Wrap(inner, Timeout(time.Second), RateLimit(0, 0))
	out, err := cli.GenerateJSON(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
	assert.Equal(t, 1, inner.calls)
}

func TestTimeout_DeadlineBecomesPermanent(t *testing.T) {
	inner := &scripted{fn: func(_ int, ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	cli := Wrap(inner, Timeout(10*time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "sys", "p")
	require.Error(t, err)
	assert.True(t, llmclient.IsPermanent(err), "timeout must not be retried")
}

func TestTimeout_CallerCancelStaysNonPermanent(t *testing.T) {
	inner := &scripted{fn: func(_ int, ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	cli := Wrap(inner, Timeout(time.Minute))
	_, err := cli.GenerateJSON(ctx, "sys", "p")
	require.Error(t, err)
	assert.False(t, llmclient.IsPermanent(err))
}

func TestTimeout_FastCallPassesThrough(t *testing.T) {
	inner := &scripted{fn: func(int, context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}}

	cli := Wrap(inner, Timeout(time.Second))
	out, err := cli.GenerateJSON(context.Background(), "sys", "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestRateLimit_SpacesCalls(t *testing.T) {
	inner := &scripted{fn: func(int, context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}

	// rps=20, burst=1: the second call should wait roughly 50ms.
	cli := Wrap(inner, RateLimit(20, 1))
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	_, err := cli.GenerateJSON(context.Background(), "s", "p")
	require.NoError(t, err)
	_, err = cli.GenerateJSON(context.Background(), "s", "p")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateLimit_DisabledIsNoOp(t *testing.T) {
	inner := &scripted{fn: func(int, context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	cli := Wrap(inner, RateLimit(0, 0))
	start := time.Now()
	for i := 0; i < 20; i++ {
		_, err := cli.GenerateJSON(context.Background(), "s", "p")
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
