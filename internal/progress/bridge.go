// Package progress fans live job status out to subscribed clients. The
// bridge is a UX accelerant, not a source of truth: delivery is
// best-effort, a disconnected client simply misses events and recovers
// the terminal result by polling the job itself.
package progress

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Statuses carried on progress events. Handlers may emit domain-specific
// values as well; these cover the shared lifecycle.
const (
	StatusQueued       = "queued"
	StatusRunning      = "running"
	StatusRetrying     = "retrying"
	StatusComplete     = "complete"
	StatusFailed       = "failed"
	StatusNotAvailable = "not_available"
)

// Event is the wire shape delivered to rooms brand:{brandId} and
// job:{jobId}.
type Event struct {
	JobID     string          `json:"jobId"`
	BrandID   string          `json:"brandId,omitempty"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// BrandRoom returns the room name every tab watching a brand joins.
func BrandRoom(brandID string) string { return "brand:" + brandID }

// JobRoom returns the room name for clients that only know a job id.
func JobRoom(jobID string) string { return "job:" + jobID }

// Subscriber receives events on a buffered channel. Sends never block;
// an event that does not fit the buffer is dropped.
type Subscriber struct {
	id     string
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan Event { return s.ch }

func (s *Subscriber) send(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Mirror forwards every published event to a secondary transport (the
// Redis pub/sub relay in multi-process deployments).
type Mirror interface {
	Publish(ctx context.Context, room string, evt Event) error
}

// Bridge is the single writer of progress events. Worker pools and
// handlers publish through it; API-layer subscribers read from it.
type Bridge struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]*Subscriber
	nextSub int
	buffer  int
	mirror  Mirror
	dropped int64
	log     zerolog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) Option {
	return func(b *Bridge) { b.buffer = n }
}

// WithMirror forwards published events to a secondary transport.
func WithMirror(m Mirror) Option {
	return func(b *Bridge) { b.mirror = m }
}

// NewBridge creates an empty bridge.
func NewBridge(log zerolog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		rooms:  make(map[string]map[string]*Subscriber),
		buffer: 64,
		log:    log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe joins the given rooms and returns a subscriber plus a cancel
// function that leaves all rooms and closes the channel.
func (b *Bridge) Subscribe(rooms ...string) (*Subscriber, func()) {
	b.mu.Lock()
	b.nextSub++
	sub := &Subscriber{
		id: "sub-" + strconv.Itoa(b.nextSub),
		ch: make(chan Event, b.buffer),
	}
	for _, room := range rooms {
		members, ok := b.rooms[room]
		if !ok {
			members = make(map[string]*Subscriber)
			b.rooms[room] = members
		}
		members[sub.id] = sub
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		for _, room := range rooms {
			if members, ok := b.rooms[room]; ok {
				delete(members, sub.id)
				if len(members) == 0 {
					delete(b.rooms, room)
				}
			}
		}
		b.mu.Unlock()
		sub.close()
	}
	return sub, cancel
}

// Publish broadcasts an event to both its brand room and its job room.
// Subscribers on both rooms receive it once. Fire-and-forget: full
// buffers drop, a missing subscriber is not an error.
func (b *Bridge) Publish(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	rooms := make([]string, 0, 2)
	if evt.JobID != "" {
		rooms = append(rooms, JobRoom(evt.JobID))
	}
	if evt.BrandID != "" {
		rooms = append(rooms, BrandRoom(evt.BrandID))
	}

	b.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, room := range rooms {
		for id, sub := range b.rooms[room] {
			seen[id] = sub
		}
	}
	b.mu.RUnlock()

	for _, sub := range seen {
		if !sub.send(evt) {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	}

	if b.mirror != nil {
		for _, room := range rooms {
			if err := b.mirror.Publish(ctx, room, evt); err != nil {
				b.log.Warn().Err(err).Str("room", room).Str("job_id", evt.JobID).
					Msg("progress: mirror publish failed")
			}
		}
	}
}

// Deliver fans an event out to a single room's local subscribers,
// bypassing the mirror. The Redis relay hands remote events in through
// here; re-mirroring them would echo between processes.
func (b *Bridge) Deliver(room string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.rooms[room]))
	for _, sub := range b.rooms[room] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.send(evt) {
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	}
}

// SubscriberCount returns the number of subscribers in a room.
func (b *Bridge) SubscriberCount(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[room])
}

// Dropped returns how many events were dropped on full buffers.
func (b *Bridge) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
