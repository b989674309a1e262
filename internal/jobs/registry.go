package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"brandkit/internal/domain"
	"brandkit/internal/worker"
)

// Registry maps queue names to worker handlers. Typed handlers are
// registered through Register, which closes over the payload decode so a
// handler can never see another queue's payload shape.
type Registry struct {
	handlers map[string]worker.Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]worker.Handler)}
}

// Register binds a typed handler to a queue. Payloads were validated at
// dispatch time; the unmarshal here only rehydrates the struct.
//
// Package-level because Go does not allow generic methods.
func Register[T any](r *Registry, queueName string, fn func(ctx context.Context, job *domain.Job, payload *T) (json.RawMessage, error)) error {
	if _, dup := r.handlers[queueName]; dup {
		return fmt.Errorf("queue %q: %w", queueName, domain.ErrDuplicateHandler)
	}
	r.handlers[queueName] = func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		var payload T
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload for job %s: %w", job.ID, err)
		}
		return fn(ctx, job, &payload)
	}
	return nil
}

// Handler returns the handler bound to a queue.
func (r *Registry) Handler(queueName string) (worker.Handler, bool) {
	h, ok := r.handlers[queueName]
	return h, ok
}
