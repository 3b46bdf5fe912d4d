package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func TestDo_FirstSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Backoff: Linear(time.Millisecond)}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, errFatal) },
	}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		MaxAttempts: 3,
		Backoff:     func(int, error) time.Duration { return time.Minute },
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestBackoffCurves(t *testing.T) {
	lin := Linear(time.Second)
	assert.Equal(t, time.Second, lin(0, nil))
	assert.Equal(t, 2*time.Second, lin(1, nil))
	assert.Equal(t, 3*time.Second, lin(2, nil))

	exp := Exponential(time.Second)
	assert.Equal(t, time.Second, exp(0, nil))
	assert.Equal(t, 2*time.Second, exp(1, nil))
	assert.Equal(t, 4*time.Second, exp(2, nil))
}
