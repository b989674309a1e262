package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"brandkit/internal/dispatch"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []struct {
		queue string
		jobID string
	}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, queueName string, _ json.RawMessage, opts dispatch.Options) (dispatch.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, struct {
		queue string
		jobID string
	}{queueName, opts.JobID})
	return dispatch.Receipt{JobID: opts.JobID, Queue: queueName}, nil
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&recordingDispatcher{}, []Entry{
		{Name: "broken", Spec: "not a cron spec", Queue: "cleanup"},
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("NewScheduler accepted an unparseable spec")
	}
}

func TestFireDueDispatchesWithDeterministicID(t *testing.T) {
	rec := &recordingDispatcher{}
	s, err := NewScheduler(rec, []Entry{
		{Name: "cleanup-prune", Spec: "@hourly", Queue: "cleanup", Payload: json.RawMessage(`{"task":"prune-jobs"}`)},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler returned error: %v", err)
	}

	fireAt := s.entries[0].next
	s.fireDue(fireAt.Add(time.Second))

	if len(rec.calls) != 1 {
		t.Fatalf("dispatch count mismatch: got %d want 1", len(rec.calls))
	}
	wantID := "cleanup-prune@" + fireAt.UTC().Format(time.RFC3339)
	if rec.calls[0].jobID != wantID {
		t.Fatalf("job id mismatch: got %q want %q", rec.calls[0].jobID, wantID)
	}
	if rec.calls[0].queue != "cleanup" {
		t.Fatalf("queue mismatch: got %q", rec.calls[0].queue)
	}

	// The same tick replayed cannot fire the entry again.
	s.fireDue(fireAt.Add(2 * time.Second))
	if len(rec.calls) != 1 {
		t.Fatalf("replayed tick double-fired: %d dispatches", len(rec.calls))
	}
}

func TestFireDueSkipsEntriesNotYetDue(t *testing.T) {
	rec := &recordingDispatcher{}
	s, err := NewScheduler(rec, DefaultEntries(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler returned error: %v", err)
	}
	s.fireDue(s.entries[0].next.Add(-time.Second))
	if len(rec.calls) != 0 {
		t.Fatalf("entries fired before their schedule: %d", len(rec.calls))
	}
}

func TestStartStop(t *testing.T) {
	rec := &recordingDispatcher{}
	s, err := NewScheduler(rec, []Entry{
		{Name: "fast", Spec: "@every 1s", Queue: "cleanup", Payload: json.RawMessage(`{"task":"prune-jobs"}`)},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler returned error: %v", err)
	}
	// Cron never schedules closer than a second apart; backdate the entry
	// so the loop's first ticks find it due.
	s.tick = 5 * time.Millisecond
	s.entries[0].next = time.Now()
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		fired := len(rec.calls)
		rec.mu.Unlock()
		if fired > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never fired a due entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
