// Package broker abstracts the message-durability substrate the queues sit
// on. The dispatcher only ever enqueues; worker pools claim, then report a
// terminal state. Delivery is at-least-once: a job claimed by a crashed
// worker reappears, so handlers must be idempotent per job id.
package broker

import (
	"context"
	"time"

	"brandkit/internal/domain"
	"brandkit/internal/queue"
)

// Broker is the storage substrate for jobs. Implementations must serve
// jobs in priority order (lower first), FIFO among equal priorities, and
// hold delayed jobs back until their NotBefore passes. No ordering is
// guaranteed across queues.
type Broker interface {
	// Enqueue stores a job. If a job with the same id already exists the
	// call is a no-op and created is false (caller-supplied ids are the
	// deduplication mechanism).
	Enqueue(ctx context.Context, job *domain.Job) (created bool, err error)

	// Dequeue blocks until a job on the named queue is claimable or the
	// context is done. The returned job is in the active state.
	Dequeue(ctx context.Context, queueName string) (*domain.Job, error)

	// Complete marks an active job terminally completed.
	Complete(ctx context.Context, job *domain.Job) error

	// Fail marks an active job terminally failed.
	Fail(ctx context.Context, job *domain.Job, reason string) error

	// Retry returns an active job to the queue after delay. The job
	// becomes delayed, then waiting once the delay elapses.
	Retry(ctx context.Context, job *domain.Job, delay time.Duration, reason string) error

	// Job returns a stored job by id.
	Job(ctx context.Context, id string) (*domain.Job, error)

	// Count returns how many jobs on the queue are in any of the given
	// states (all states when none given).
	Count(ctx context.Context, queueName string, states ...domain.JobState) (int, error)

	// Prune garbage-collects terminal jobs past the retention policy and
	// returns how many were removed.
	Prune(ctx context.Context, queueName string, policy queue.RetentionPolicy) (int, error)

	Close() error
}
