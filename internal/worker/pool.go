// Package worker runs jobs claimed from the broker. One pool serves one
// queue, so a slow generation queue can never starve email sends.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"brandkit/internal/broker"
	"brandkit/internal/domain"
	"brandkit/internal/progress"
	"brandkit/internal/queue"
)

// Handler executes a single job. The context carries the queue timeout;
// handlers must keep their own external calls bounded because the pool
// can only fail the job around a stuck call, not interrupt it. Handlers
// are retried under at-least-once delivery and must be idempotent per
// job id.
type Handler func(ctx context.Context, job *domain.Job) (result json.RawMessage, err error)

// Pool claims jobs from one queue and runs up to policy.Concurrency
// handlers at a time. This admission control is what protects
// rate-limited upstream providers from overload.
type Pool struct {
	policy  queue.Policy
	broker  broker.Broker
	handler Handler
	bridge  *progress.Bridge
	log     zerolog.Logger

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewPool creates a pool for one queue.
func NewPool(policy queue.Policy, b broker.Broker, handler Handler, bridge *progress.Bridge, log zerolog.Logger) *Pool {
	p := &Pool{
		policy:  policy,
		broker:  b,
		handler: handler,
		bridge:  bridge,
		log:     log.With().Str("queue", policy.Name).Logger(),
		sem:     semaphore.NewWeighted(int64(policy.Concurrency)),
	}
	if policy.RatePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(policy.RatePerSec), 1)
	}
	return p
}

// Start launches the claim loop. It returns immediately.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.claimLoop(ctx)

	p.log.Info().
		Int("concurrency", p.policy.Concurrency).
		Dur("timeout", p.policy.Timeout).
		Msg("worker: pool started")
}

// Stop drains the pool: no new claims, in-flight handlers finish (or hit
// their timeout), then Stop returns. The context bounds the wait.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info().Msg("worker: pool stopped")
		return nil
	case <-ctx.Done():
		p.log.Warn().Msg("worker: pool shutdown timed out with handlers in flight")
		return ctx.Err()
	}
}

// claimLoop is the single scheduler goroutine for this pool.
func (p *Pool) claimLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}

		job, err := p.broker.Dequeue(ctx, p.policy.Name)
		if err != nil {
			p.sem.Release(1)
			if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrBrokerClosed) {
				return
			}
			p.log.Error().Err(err).Msg("worker: dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.wg.Add(1)
		go p.execute(job)
	}
}

type execResult struct {
	result json.RawMessage
	err    error
}

// execute runs one claimed job to a terminal or retry state.
func (p *Pool) execute(job *domain.Job) {
	defer p.wg.Done()

	attempt := job.AttemptsMade + 1
	p.log.Info().Str("job_id", job.ID).Int("attempt", attempt).Msg("worker: job started")
	p.publish(job, progress.StatusRunning, 5, "Working on it", nil)

	// The handler gets a timeout-bounded context. If it overruns, the
	// job is failed around it; the goroutine below keeps the
	// concurrency slot until the handler actually returns so a zombie
	// handler still counts against the limit.
	hctx, cancel := context.WithTimeout(context.Background(), p.policy.Timeout)
	done := make(chan execResult, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer cancel()
		result, err := p.handler(hctx, job)
		done <- execResult{result: result, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
		if res.err != nil && hctx.Err() != nil {
			res.err = fmt.Errorf("%w after %s", domain.ErrJobTimeout, p.policy.Timeout)
		}
	case <-hctx.Done():
		res = execResult{err: fmt.Errorf("%w after %s", domain.ErrJobTimeout, p.policy.Timeout)}
	}

	job.AttemptsMade = attempt
	ctx := context.Background()

	if res.err == nil {
		if err := p.broker.Complete(ctx, job); err != nil {
			p.log.Error().Err(err).Str("job_id", job.ID).Msg("worker: complete failed")
		}
		p.log.Info().Str("job_id", job.ID).Int("attempt", attempt).Msg("worker: job completed")
		p.publish(job, progress.StatusComplete, 100, "Done", res.result)
		return
	}

	if attempt < p.policy.Retry.Attempts {
		delay := RetryDelay(p.policy.Retry, attempt)
		if err := p.broker.Retry(ctx, job, delay, res.err.Error()); err != nil {
			p.log.Error().Err(err).Str("job_id", job.ID).Msg("worker: retry enqueue failed")
		}
		p.log.Warn().Err(res.err).
			Str("job_id", job.ID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("worker: job failed, will retry")
		p.publish(job, progress.StatusRetrying, 0, "That didn't work, trying again", nil)
		return
	}

	if err := p.broker.Fail(ctx, job, res.err.Error()); err != nil {
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("worker: fail mark failed")
	}
	p.log.Error().Err(res.err).
		Str("job_id", job.ID).
		Int("attempts", attempt).
		Msg("worker: job failed terminally")
	p.publish(job, progress.StatusFailed, 0, "We couldn't finish this step. Please try again.", nil)
}

func (p *Pool) publish(job *domain.Job, status string, pct int, message string, result json.RawMessage) {
	p.bridge.Publish(context.Background(), progress.Event{
		JobID:    job.ID,
		BrandID:  job.BrandID,
		Status:   status,
		Progress: pct,
		Message:  message,
		Result:   result,
	})
}
