package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"brandkit/internal/dispatch"
	"brandkit/internal/domain"
	"brandkit/internal/queue"
)

const maxPayloadBytes = 256 << 10

// creditGated lists the queues whose jobs consume a credit on dispatch.
var creditGated = map[string]bool{
	queue.LogoGeneration:    true,
	queue.MockupGeneration:  true,
	queue.BundleComposition: true,
	queue.VideoGeneration:   true,
}

// JobEnqueue validates a payload against its queue schema and hands it to
// the broker. Generation queues pass the credit gate first; a short
// balance rejects the request before any job exists.
func (a *App) JobEnqueue(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}

	var reserved bool
	var userID string
	if creditGated[queueName] {
		payload, err := queue.DecodePayload(queueName, body)
		if err != nil {
			a.dispatchError(w, err)
			return
		}
		userID, _ = payload.Identity()
		if err := a.Gate.CheckAndReserve(r.Context(), userID, a.GenerationCost); err != nil {
			if errors.Is(err, domain.ErrCreditExhausted) {
				a.error(w, http.StatusPaymentRequired, "credit_exhausted",
					"You're out of credits. Upgrade your plan to keep generating.")
				return
			}
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("credit reservation failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to reserve credits")
			return
		}
		reserved = true
	}

	opts := dispatchOptions(r)
	receipt, err := a.Dispatcher.Dispatch(r.Context(), queueName, body, opts)
	if err != nil {
		if reserved {
			if rerr := a.Gate.Refund(r.Context(), userID, a.GenerationCost); rerr != nil {
				a.Logger.Error().Err(rerr).Str("user_id", userID).Msg("credit refund failed")
			}
		}
		a.dispatchError(w, err)
		return
	}
	if reserved && !receipt.Created {
		// Duplicate job id: nothing was enqueued, the reservation must
		// come back.
		if rerr := a.Gate.Refund(r.Context(), userID, a.GenerationCost); rerr != nil {
			a.Logger.Error().Err(rerr).Str("user_id", userID).Msg("credit refund failed")
		}
	}
	a.json(w, http.StatusAccepted, receipt)
}

func dispatchOptions(r *http.Request) dispatch.Options {
	var opts dispatch.Options
	q := r.URL.Query()
	if v := q.Get("priority"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			opts.Priority = &p
		}
	}
	if v := q.Get("delay_seconds"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			opts.Delay = time.Duration(s) * time.Second
		}
	}
	opts.JobID = q.Get("job_id")
	return opts
}

func (a *App) dispatchError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnknownQueue):
		a.error(w, http.StatusNotFound, "unknown_queue", err.Error())
	case errors.As(err, &verr):
		a.json(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation_failed",
			"queue":   verr.Queue,
			"message": "payload failed schema validation",
			"fields":  verr.Fields,
		})
	default:
		a.Logger.Error().Err(err).Msg("dispatch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue job")
	}
}

// JobStatus reports the durable state of a single job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Broker.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("job lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":            job.ID,
		"queue":         job.Queue,
		"state":         job.State,
		"priority":      job.Priority,
		"attempts_made": job.AttemptsMade,
		"last_error":    job.LastError,
		"created_at":    job.CreatedAt,
		"finished_at":   job.FinishedAt,
	})
}

// QueueList exposes the catalog with each queue's operational policy.
func (a *App) QueueList(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]any, 0)
	for _, name := range a.Queues.Names() {
		policy, err := a.Queues.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{
			"name":         policy.Name,
			"concurrency":  policy.Concurrency,
			"priority":     policy.Priority,
			"timeout_ms":   policy.Timeout.Milliseconds(),
			"max_attempts": policy.Retry.Attempts,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"queues": out})
}

// QueueStats counts jobs per lifecycle state for one queue.
func (a *App) QueueStats(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	if _, err := a.Queues.Lookup(queueName); err != nil {
		a.error(w, http.StatusNotFound, "unknown_queue", err.Error())
		return
	}
	states := []domain.JobState{
		domain.JobWaiting, domain.JobDelayed, domain.JobActive,
		domain.JobCompleted, domain.JobFailed,
	}
	counts := make(map[string]int, len(states))
	for _, st := range states {
		n, err := a.Broker.Count(r.Context(), queueName, st)
		if err != nil {
			a.Logger.Error().Err(err).Str("queue", queueName).Msg("queue count failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to count jobs")
			return
		}
		counts[string(st)] = n
	}
	a.json(w, http.StatusOK, map[string]any{"queue": queueName, "counts": counts})
}
