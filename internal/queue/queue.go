// Package queue decouples webhook intake from scoring work. Jobs are
// identified deterministically so redelivered webhooks collapse into a
// single unit of work.
package queue

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the queue has been shut down.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when a job cannot be accepted right now.
	ErrFull = errors.New("queue full")
)

// ScorePRJob is the single job type the pipeline processes.
type ScorePRJob struct {
	Owner          string `json:"owner"`
	Name           string `json:"name"`
	PRNumber       int    `json:"pr_number"`
	InstallationID int64  `json:"installation_id"`
	DeliveryID     string `json:"delivery_id"`
}

// ID is the deterministic job identity. Two deliveries of the same
// webhook produce the same ID and therefore one job.
func (j ScorePRJob) ID() string {
	return fmt.Sprintf("pr-%s-%s-%d-%s", j.Owner, j.Name, j.PRNumber, j.DeliveryID)
}

// Delivery is one handoff of a job to a worker. Attempt starts at 1.
type Delivery struct {
	Job     ScorePRJob
	Attempt int
}

// Client is the queue contract the gateway enqueues into and the worker
// pool drains.
type Client interface {
	// Enqueue adds a job. A job whose ID was already enqueued is
	// silently dropped.
	Enqueue(ctx context.Context, job ScorePRJob) error

	// Dequeue blocks until a job is available or the context ends.
	Dequeue(ctx context.Context) (Delivery, error)

	// Ack marks the delivery fully processed.
	Ack(ctx context.Context, d Delivery) error

	// Nack schedules a redelivery with backoff, or dead-letters the
	// job once its attempt budget is spent.
	Nack(ctx context.Context, d Delivery) error

	Close() error
}
