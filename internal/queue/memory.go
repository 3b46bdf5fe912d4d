package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"prsentry/internal/retry"
)

const (
	maxAttempts      = 3
	backoffBase      = 2 * time.Second
	seenCapacity     = 8192
	defaultQueueSize = 1024
)

// Memory is an in-process Client. Redeliveries are scheduled with
// exponential backoff; a job that fails maxAttempts times is moved to
// the dead letter list and never redelivered.
type Memory struct {
	mu      sync.Mutex
	seen    *lru.Cache[string, struct{}]
	jobs    chan Delivery
	timers  map[string]*time.Timer
	dead    []Delivery
	backoff retry.BackoffFunc
	closed  bool
	log     *slog.Logger
}

// NewMemory builds an in-process queue.
func NewMemory(log *slog.Logger) *Memory {
	seen, _ := lru.New[string, struct{}](seenCapacity)
	return &Memory{
		seen:    seen,
		jobs:    make(chan Delivery, defaultQueueSize),
		timers:  make(map[string]*time.Timer),
		backoff: retry.Exponential(backoffBase),
		log:     log,
	}
}

func (m *Memory) Enqueue(ctx context.Context, job ScorePRJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	id := job.ID()
	if _, dup := m.seen.Get(id); dup {
		m.log.Debug("duplicate job dropped", "job_id", id)
		return nil
	}
	m.seen.Add(id, struct{}{})

	select {
	case m.jobs <- Delivery{Job: job, Attempt: 1}:
		m.log.Info("job enqueued", "job_id", id)
		return nil
	default:
		// Queue full. Forget the ID so a later delivery can retry.
		m.seen.Remove(id)
		return ErrFull
	}
}

func (m *Memory) Dequeue(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case d, ok := <-m.jobs:
		if !ok {
			return Delivery{}, ErrClosed
		}
		return d, nil
	}
}

func (m *Memory) Ack(_ context.Context, d Delivery) error {
	m.log.Debug("job acked", "job_id", d.Job.ID(), "attempt", d.Attempt)
	return nil
}

func (m *Memory) Nack(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	id := d.Job.ID()
	if d.Attempt >= maxAttempts {
		m.dead = append(m.dead, d)
		m.log.Error("job dead-lettered", "job_id", id, "attempts", d.Attempt)
		return nil
	}

	// Attempt is 1-based; the backoff curve is zero-based, so the first
	// failure waits the base delay.
	delay := m.backoff(d.Attempt-1, nil)
	next := Delivery{Job: d.Job, Attempt: d.Attempt + 1}
	m.log.Warn("job redelivery scheduled", "job_id", id, "attempt", next.Attempt, "delay", delay)

	m.timers[id] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.timers, id)
		if m.closed {
			return
		}
		select {
		case m.jobs <- next:
		default:
			m.dead = append(m.dead, next)
			m.log.Error("queue full on redelivery, job dead-lettered", "job_id", id)
		}
	})
	return nil
}

// DeadLetters returns a snapshot of jobs that exhausted their attempts.
func (m *Memory) DeadLetters() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.dead))
	copy(out, m.dead)
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	close(m.jobs)
	return nil
}
