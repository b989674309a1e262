package broker

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"brandkit/internal/domain"
	"brandkit/internal/queue"
)

// Memory is an in-process Broker. It backs single-node deployments and
// every test in this repository; the Redis broker carries the same
// semantics for multi-process setups.
type Memory struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	jobs   map[string]*domain.Job
	seq    uint64
	closed bool
}

type memQueue struct {
	ready   readyHeap
	delayed delayHeap
	// wake is signalled whenever a job may have become claimable.
	wake chan struct{}
}

// NewMemory creates an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]*memQueue),
		jobs:   make(map[string]*domain.Job),
	}
}

func (m *Memory) queueLocked(name string) *memQueue {
	q, ok := m.queues[name]
	if !ok {
		q = &memQueue{wake: make(chan struct{}, 1)}
		m.queues[name] = q
	}
	return q
}

func (q *memQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (m *Memory) Enqueue(_ context.Context, job *domain.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, domain.ErrBrokerClosed
	}
	if _, exists := m.jobs[job.ID]; exists {
		return false, nil
	}

	stored := job.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.jobs[stored.ID] = stored

	q := m.queueLocked(stored.Queue)
	m.seq++
	if stored.NotBefore.After(time.Now()) {
		stored.State = domain.JobDelayed
		heap.Push(&q.delayed, &delayItem{job: stored, seq: m.seq})
	} else {
		stored.State = domain.JobWaiting
		heap.Push(&q.ready, &readyItem{job: stored, seq: m.seq})
	}
	q.signal()
	return true, nil
}

func (m *Memory) Dequeue(ctx context.Context, queueName string) (*domain.Job, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, domain.ErrBrokerClosed
		}
		q := m.queueLocked(queueName)
		m.promoteLocked(q)

		if q.ready.Len() > 0 {
			item := heap.Pop(&q.ready).(*readyItem)
			item.job.State = domain.JobActive
			claimed := item.job.Clone()
			m.mu.Unlock()
			return claimed, nil
		}

		// Nothing claimable; wait for a signal, the next delayed job
		// coming due, or cancellation.
		wait := time.Second
		if q.delayed.Len() > 0 {
			if until := time.Until(q.delayed[0].job.NotBefore); until < wait {
				wait = until
			}
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
		}
		wake := q.wake
		m.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// promoteLocked moves due delayed jobs onto the ready heap.
func (m *Memory) promoteLocked(q *memQueue) {
	now := time.Now()
	for q.delayed.Len() > 0 && !q.delayed[0].job.NotBefore.After(now) {
		item := heap.Pop(&q.delayed).(*delayItem)
		item.job.State = domain.JobWaiting
		m.seq++
		heap.Push(&q.ready, &readyItem{job: item.job, seq: m.seq})
	}
}

func (m *Memory) Complete(_ context.Context, job *domain.Job) error {
	return m.finish(job, domain.JobCompleted, "")
}

func (m *Memory) Fail(_ context.Context, job *domain.Job, reason string) error {
	return m.finish(job, domain.JobFailed, reason)
}

func (m *Memory) finish(job *domain.Job, state domain.JobState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.State = state
	stored.AttemptsMade = job.AttemptsMade
	stored.LastError = reason
	stored.FinishedAt = time.Now()
	return nil
}

func (m *Memory) Retry(_ context.Context, job *domain.Job, delay time.Duration, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.AttemptsMade = job.AttemptsMade
	stored.LastError = reason
	stored.NotBefore = time.Now().Add(delay)

	q := m.queueLocked(stored.Queue)
	m.seq++
	if delay > 0 {
		stored.State = domain.JobDelayed
		heap.Push(&q.delayed, &delayItem{job: stored, seq: m.seq})
	} else {
		stored.State = domain.JobWaiting
		heap.Push(&q.ready, &readyItem{job: stored, seq: m.seq})
	}
	q.signal()
	return nil
}

func (m *Memory) Job(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return stored.Clone(), nil
}

func (m *Memory) Count(_ context.Context, queueName string, states ...domain.JobState) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, j := range m.jobs {
		if j.Queue != queueName {
			continue
		}
		if len(states) == 0 {
			count++
			continue
		}
		for _, s := range states {
			if j.State == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (m *Memory) Prune(_ context.Context, queueName string, policy queue.RetentionPolicy) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	pruned += m.pruneStateLocked(queueName, domain.JobCompleted, policy.CompletedCount, policy.CompletedAge)
	pruned += m.pruneStateLocked(queueName, domain.JobFailed, policy.FailedCount, policy.FailedAge)
	return pruned, nil
}

func (m *Memory) pruneStateLocked(queueName string, state domain.JobState, keep int, maxAge time.Duration) int {
	var terminal []*domain.Job
	for _, j := range m.jobs {
		if j.Queue == queueName && j.State == state {
			terminal = append(terminal, j)
		}
	}
	// Newest first; everything past the count threshold or older than
	// maxAge goes.
	sort.Slice(terminal, func(i, k int) bool {
		return terminal[i].FinishedAt.After(terminal[k].FinishedAt)
	})
	pruned := 0
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	for i, j := range terminal {
		byCount := keep > 0 && i >= keep
		byAge := !cutoff.IsZero() && j.FinishedAt.Before(cutoff)
		if byCount || byAge {
			delete(m.jobs, j.ID)
			pruned++
		}
	}
	return pruned
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, q := range m.queues {
		q.signal()
	}
	return nil
}

// readyHeap orders claimable jobs by priority, then enqueue sequence so
// equal priorities stay FIFO.
type readyItem struct {
	job *domain.Job
	seq uint64
}

type readyHeap []*readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)   { *h = append(*h, x.(*readyItem)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// delayHeap orders delayed jobs by their NotBefore time.
type delayItem struct {
	job *domain.Job
	seq uint64
}

type delayHeap []*delayItem

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if !h[i].job.NotBefore.Equal(h[j].job.NotBefore) {
		return h[i].job.NotBefore.Before(h[j].job.NotBefore)
	}
	return h[i].seq < h[j].seq
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)   { *h = append(*h, x.(*delayItem)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
