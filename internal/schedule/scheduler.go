// Package schedule turns recurring maintenance work into ordinary jobs.
// Each firing dispatches through the regular pipeline with a
// deterministic job id, so a duplicate tick cannot double-enqueue and the
// work inherits the queue's retry and observability guarantees.
package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"brandkit/internal/dispatch"
	"brandkit/internal/queue"
)

// cronParser accepts standard 5-field cron plus descriptors like
// "@hourly" and "@every 30m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Entry is one recurring dispatch.
type Entry struct {
	Name    string
	Spec    string
	Queue   string
	Payload json.RawMessage
}

// Dispatcher is the job entry point entries fire on.
type Dispatcher interface {
	Dispatch(ctx context.Context, queueName string, payload json.RawMessage, opts dispatch.Options) (dispatch.Receipt, error)
}

type scheduled struct {
	entry    Entry
	schedule cronlib.Schedule
	next     time.Time
}

// Scheduler fires entries on a tick loop.
type Scheduler struct {
	dispatcher Dispatcher
	entries    []*scheduled
	tick       time.Duration
	log        zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runs   bool
}

// NewScheduler parses all entry specs up front; a bad spec is a
// programmer error surfaced at startup, not at fire time.
func NewScheduler(d Dispatcher, entries []Entry, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		dispatcher: d,
		tick:       time.Second,
		log:        log,
		stopCh:     make(chan struct{}),
	}
	now := time.Now()
	for _, e := range entries {
		sched, err := cronParser.Parse(e.Spec)
		if err != nil {
			return nil, err
		}
		s.entries = append(s.entries, &scheduled{entry: e, schedule: sched, next: sched.Next(now)})
	}
	return s, nil
}

// Start launches the tick loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs {
		return
	}
	s.runs = true
	s.wg.Add(1)
	go s.loop()
	s.log.Info().Int("entries", len(s.entries)).Msg("schedule: started")
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.runs {
		s.mu.Unlock()
		return
	}
	s.runs = false
	s.mu.Unlock()
	close(s.stopCh)
	s.wg.Wait()
	s.log.Info().Msg("schedule: stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

func (s *Scheduler) fireDue(now time.Time) {
	for _, sc := range s.entries {
		if sc.next.After(now) {
			continue
		}
		fireAt := sc.next
		sc.next = sc.schedule.Next(now)

		// The firing timestamp in the job id deduplicates both a missed
		// tick being replayed and two schedulers racing on one broker.
		jobID := sc.entry.Name + "@" + fireAt.UTC().Format(time.RFC3339)
		_, err := s.dispatcher.Dispatch(context.Background(), sc.entry.Queue, sc.entry.Payload, dispatch.Options{
			JobID: jobID,
		})
		if err != nil {
			s.log.Error().Err(err).Str("entry", sc.entry.Name).Msg("schedule: dispatch failed")
			continue
		}
		s.log.Debug().Str("entry", sc.entry.Name).Str("job_id", jobID).Msg("schedule: entry fired")
	}
}

// DefaultEntries returns the self-scheduling housekeeping: terminal-job
// pruning and the abandonment scan, both hourly on the cleanup queue.
func DefaultEntries() []Entry {
	prune, _ := json.Marshal(queue.MaintenancePayload{Task: queue.TaskPruneJobs})
	scan, _ := json.Marshal(queue.MaintenancePayload{Task: queue.TaskAbandonScan})
	return []Entry{
		{Name: "cleanup-prune", Spec: "@hourly", Queue: queue.Cleanup, Payload: prune},
		{Name: "abandon-scan", Spec: "@hourly", Queue: queue.Cleanup, Payload: scan},
	}
}
