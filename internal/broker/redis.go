package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"brandkit/internal/domain"
	"brandkit/internal/queue"
)

const (
	redisPollInterval = 500 * time.Millisecond
	promoteBatch      = 64
)

// Redis is a Broker on top of a shared Redis connection, for deployments
// where the API and worker processes are separate. Ready jobs live in a
// per-queue sorted set scored by (priority, enqueue sequence); delayed
// jobs in a second sorted set scored by their due time.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed broker. The prefix namespaces all keys
// so several environments can share one Redis.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "brandkit"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) jobKey(id string) string        { return r.prefix + ":job:" + id }
func (r *Redis) readyKey(q string) string       { return r.prefix + ":q:" + q + ":ready" }
func (r *Redis) delayedKey(q string) string     { return r.prefix + ":q:" + q + ":delayed" }
func (r *Redis) terminalKey(q, s string) string { return r.prefix + ":q:" + q + ":" + s }
func (r *Redis) seqKey() string                 { return r.prefix + ":seq" }

// readyScore packs priority and FIFO sequence into one sortable score.
// Priorities are small integers, sequences stay well under 2^40, so the
// combined value fits float64 precision.
func readyScore(priority int, seq int64) float64 {
	return float64(priority)*1e15 + float64(seq)
}

func (r *Redis) Enqueue(ctx context.Context, job *domain.Job) (bool, error) {
	stored := job.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.NotBefore.After(time.Now()) {
		stored.State = domain.JobDelayed
	} else {
		stored.State = domain.JobWaiting
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return false, fmt.Errorf("marshal job %s: %w", stored.ID, err)
	}

	// SETNX on the job key is the deduplication point: a second enqueue
	// with the same id is a no-op.
	created, err := r.rdb.SetNX(ctx, r.jobKey(stored.ID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("store job %s: %w", stored.ID, err)
	}
	if !created {
		return false, nil
	}

	if stored.State == domain.JobDelayed {
		err = r.rdb.ZAdd(ctx, r.delayedKey(stored.Queue), redis.Z{
			Score:  float64(stored.NotBefore.UnixMilli()),
			Member: stored.ID,
		}).Err()
	} else {
		var seq int64
		seq, err = r.rdb.Incr(ctx, r.seqKey()).Result()
		if err == nil {
			err = r.rdb.ZAdd(ctx, r.readyKey(stored.Queue), redis.Z{
				Score:  readyScore(stored.Priority, seq),
				Member: stored.ID,
			}).Err()
		}
	}
	if err != nil {
		return false, fmt.Errorf("enqueue job %s: %w", stored.ID, err)
	}
	return true, nil
}

func (r *Redis) Dequeue(ctx context.Context, queueName string) (*domain.Job, error) {
	for {
		if err := r.promoteDue(ctx, queueName); err != nil {
			return nil, err
		}

		popped, err := r.rdb.ZPopMin(ctx, r.readyKey(queueName), 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("pop queue %s: %w", queueName, err)
		}
		if len(popped) > 0 {
			id, _ := popped[0].Member.(string)
			job, loadErr := r.loadJob(ctx, id)
			if loadErr != nil {
				if errors.Is(loadErr, domain.ErrNotFound) {
					// Pruned while queued; claim the next one.
					continue
				}
				return nil, loadErr
			}
			job.State = domain.JobActive
			if saveErr := r.saveJob(ctx, job); saveErr != nil {
				return nil, saveErr
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisPollInterval):
		}
	}
}

// promoteDue moves due delayed jobs onto the ready set, preserving their
// priority ordering against already-waiting jobs.
func (r *Redis) promoteDue(ctx context.Context, queueName string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := r.rdb.ZRangeByScore(ctx, r.delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: now, Offset: 0, Count: promoteBatch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}
	for _, id := range ids {
		job, loadErr := r.loadJob(ctx, id)
		if loadErr != nil {
			if errors.Is(loadErr, domain.ErrNotFound) {
				r.rdb.ZRem(ctx, r.delayedKey(queueName), id)
				continue
			}
			return loadErr
		}
		seq, seqErr := r.rdb.Incr(ctx, r.seqKey()).Result()
		if seqErr != nil {
			return seqErr
		}
		job.State = domain.JobWaiting
		if saveErr := r.saveJob(ctx, job); saveErr != nil {
			return saveErr
		}
		pipe := r.rdb.TxPipeline()
		pipe.ZAdd(ctx, r.readyKey(queueName), redis.Z{Score: readyScore(job.Priority, seq), Member: id})
		pipe.ZRem(ctx, r.delayedKey(queueName), id)
		if _, pipeErr := pipe.Exec(ctx); pipeErr != nil {
			return pipeErr
		}
	}
	return nil
}

func (r *Redis) Complete(ctx context.Context, job *domain.Job) error {
	return r.finish(ctx, job, domain.JobCompleted, "")
}

func (r *Redis) Fail(ctx context.Context, job *domain.Job, reason string) error {
	return r.finish(ctx, job, domain.JobFailed, reason)
}

func (r *Redis) finish(ctx context.Context, job *domain.Job, state domain.JobState, reason string) error {
	stored, err := r.loadJob(ctx, job.ID)
	if err != nil {
		return err
	}
	stored.State = state
	stored.AttemptsMade = job.AttemptsMade
	stored.LastError = reason
	stored.FinishedAt = time.Now()
	if err := r.saveJob(ctx, stored); err != nil {
		return err
	}
	// Terminal index, scored by finish time, drives retention pruning.
	return r.rdb.ZAdd(ctx, r.terminalKey(stored.Queue, string(state)), redis.Z{
		Score:  float64(stored.FinishedAt.UnixMilli()),
		Member: stored.ID,
	}).Err()
}

func (r *Redis) Retry(ctx context.Context, job *domain.Job, delay time.Duration, reason string) error {
	stored, err := r.loadJob(ctx, job.ID)
	if err != nil {
		return err
	}
	stored.AttemptsMade = job.AttemptsMade
	stored.LastError = reason
	stored.NotBefore = time.Now().Add(delay)
	if delay > 0 {
		stored.State = domain.JobDelayed
		if err := r.saveJob(ctx, stored); err != nil {
			return err
		}
		return r.rdb.ZAdd(ctx, r.delayedKey(stored.Queue), redis.Z{
			Score:  float64(stored.NotBefore.UnixMilli()),
			Member: stored.ID,
		}).Err()
	}
	stored.State = domain.JobWaiting
	if err := r.saveJob(ctx, stored); err != nil {
		return err
	}
	seq, err := r.rdb.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return err
	}
	return r.rdb.ZAdd(ctx, r.readyKey(stored.Queue), redis.Z{
		Score:  readyScore(stored.Priority, seq),
		Member: stored.ID,
	}).Err()
}

func (r *Redis) Job(ctx context.Context, id string) (*domain.Job, error) {
	return r.loadJob(ctx, id)
}

func (r *Redis) Count(ctx context.Context, queueName string, states ...domain.JobState) (int, error) {
	if len(states) == 0 {
		states = []domain.JobState{
			domain.JobWaiting, domain.JobActive, domain.JobDelayed,
			domain.JobCompleted, domain.JobFailed,
		}
	}
	total := 0
	for _, state := range states {
		var n int64
		var err error
		switch state {
		case domain.JobWaiting:
			n, err = r.rdb.ZCard(ctx, r.readyKey(queueName)).Result()
		case domain.JobDelayed:
			n, err = r.rdb.ZCard(ctx, r.delayedKey(queueName)).Result()
		case domain.JobCompleted, domain.JobFailed:
			n, err = r.rdb.ZCard(ctx, r.terminalKey(queueName, string(state))).Result()
		default:
			// Active jobs are only tracked on the job keys themselves;
			// counting them would need a scan, which no caller does.
			continue
		}
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

func (r *Redis) Prune(ctx context.Context, queueName string, policy queue.RetentionPolicy) (int, error) {
	pruned := 0
	for _, spec := range []struct {
		state domain.JobState
		keep  int
		age   time.Duration
	}{
		{domain.JobCompleted, policy.CompletedCount, policy.CompletedAge},
		{domain.JobFailed, policy.FailedCount, policy.FailedAge},
	} {
		key := r.terminalKey(queueName, string(spec.state))
		var victims []string

		if spec.age > 0 {
			cutoff := strconv.FormatInt(time.Now().Add(-spec.age).UnixMilli(), 10)
			old, err := r.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
			if err != nil {
				return pruned, err
			}
			victims = append(victims, old...)
		}
		if spec.keep > 0 {
			// Oldest beyond the keep-newest window.
			excess, err := r.rdb.ZRange(ctx, key, 0, int64(-spec.keep-1)).Result()
			if err != nil {
				return pruned, err
			}
			victims = append(victims, excess...)
		}
		for _, id := range victims {
			pipe := r.rdb.TxPipeline()
			pipe.ZRem(ctx, key, id)
			pipe.Del(ctx, r.jobKey(id))
			if _, err := pipe.Exec(ctx); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) loadJob(ctx context.Context, id string) (*domain.Job, error) {
	data, err := r.rdb.Get(ctx, r.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (r *Redis) saveJob(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return r.rdb.Set(ctx, r.jobKey(job.ID), data, 0).Err()
}
