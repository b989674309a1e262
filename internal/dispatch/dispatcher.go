// Package dispatch is the single entry point through which jobs reach the
// broker. Every job is validated against its queue's payload schema
// before it is enqueued; nothing malformed ever reaches a worker.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"brandkit/internal/broker"
	"brandkit/internal/domain"
	"brandkit/internal/queue"
)

// Options tune a single dispatch call.
type Options struct {
	// Priority overrides the queue policy's priority when non-nil.
	Priority *int
	// Delay holds the job back before it becomes claimable.
	Delay time.Duration
	// JobID supplies a caller-chosen id for deduplication-sensitive
	// flows (one abandonment notification per brand). Empty means a
	// fresh unique id.
	JobID string
}

// Receipt identifies a durably enqueued job. Created is false when the
// job id already existed and the enqueue was a deduplication no-op.
type Receipt struct {
	JobID   string `json:"job_id"`
	Queue   string `json:"queue"`
	Created bool   `json:"created"`
}

// Dispatcher validates payloads and hands jobs to the broker. It returns
// as soon as the job is durably enqueued; it never waits on execution.
type Dispatcher struct {
	registry *queue.Registry
	broker   broker.Broker
	log      zerolog.Logger
}

// New creates a Dispatcher. The registry and broker are shared with the
// worker pools.
func New(registry *queue.Registry, b broker.Broker, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, broker: b, log: log}
}

// Dispatch validates the payload for the named queue and enqueues a job.
// Errors: domain.ErrUnknownQueue for an unregistered queue,
// *domain.ValidationError with field-level detail for a bad payload.
func (d *Dispatcher) Dispatch(ctx context.Context, queueName string, rawPayload json.RawMessage, opts Options) (Receipt, error) {
	policy, err := d.registry.Lookup(queueName)
	if err != nil {
		return Receipt{}, err
	}

	payload, err := queue.DecodePayload(queueName, rawPayload)
	if err != nil {
		return Receipt{}, err
	}
	normalized, err := queue.NormalizePayload(payload)
	if err != nil {
		return Receipt{}, err
	}

	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	priority := policy.Priority
	if opts.Priority != nil {
		priority = *opts.Priority
	}

	userID, brandID := payload.Identity()
	job := &domain.Job{
		ID:       jobID,
		Queue:    queueName,
		Payload:  normalized,
		Priority: priority,
		UserID:   userID,
		BrandID:  brandID,
	}
	if opts.Delay > 0 {
		job.NotBefore = time.Now().Add(opts.Delay)
	}

	created, err := d.broker.Enqueue(ctx, job)
	if err != nil {
		return Receipt{}, err
	}

	entry := d.log.Info().
		Str("job_id", jobID).
		Str("queue", queueName).
		Int("priority", priority)
	if userID != "" {
		entry = entry.Str("user_id", userID)
	}
	if brandID != "" {
		entry = entry.Str("brand_id", brandID)
	}
	if opts.Delay > 0 {
		entry = entry.Dur("delay", opts.Delay)
	}
	if created {
		entry.Msg("dispatch: job enqueued")
	} else {
		entry.Msg("dispatch: duplicate job id, enqueue skipped")
	}

	return Receipt{JobID: jobID, Queue: queueName, Created: created}, nil
}
