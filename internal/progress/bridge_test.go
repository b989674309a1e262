package progress

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPublishReachesBothRoomsOnce(t *testing.T) {
	b := NewBridge(zerolog.Nop())

	// One subscriber watches the whole brand, one watches the job, and
	// one (the wizard tab) watches both.
	brandSub, cancelBrand := b.Subscribe(BrandRoom("b1"))
	defer cancelBrand()
	jobSub, cancelJob := b.Subscribe(JobRoom("j1"))
	defer cancelJob()
	bothSub, cancelBoth := b.Subscribe(BrandRoom("b1"), JobRoom("j1"))
	defer cancelBoth()

	b.Publish(context.Background(), Event{JobID: "j1", BrandID: "b1", Status: StatusComplete, Progress: 100})

	for name, sub := range map[string]*Subscriber{"brand": brandSub, "job": jobSub, "both": bothSub} {
		select {
		case evt := <-sub.C():
			if evt.Status != StatusComplete || evt.Progress != 100 {
				t.Fatalf("%s subscriber event mismatch: %+v", name, evt)
			}
			if evt.Timestamp.IsZero() {
				t.Fatalf("%s subscriber event missing timestamp", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber received nothing", name)
		}
		select {
		case evt := <-sub.C():
			t.Fatalf("%s subscriber received duplicate event: %+v", name, evt)
		default:
		}
	}
}

func TestPublishWithoutSubscribersIsFireAndForget(t *testing.T) {
	b := NewBridge(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), Event{JobID: "nobody-watching", Status: StatusRunning})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBridge(zerolog.Nop(), WithBuffer(1))
	_, cancel := b.Subscribe(JobRoom("j1"))
	defer cancel()

	// Second publish overflows the buffer; it must drop, not block.
	done := make(chan struct{})
	go func() {
		b.Publish(context.Background(), Event{JobID: "j1", Status: StatusRunning})
		b.Publish(context.Background(), Event{JobID: "j1", Status: StatusRunning})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
	if b.Dropped() != 1 {
		t.Fatalf("dropped counter mismatch: got %d want 1", b.Dropped())
	}
}

func TestCancelLeavesRoom(t *testing.T) {
	b := NewBridge(zerolog.Nop())
	sub, cancel := b.Subscribe(BrandRoom("b1"))
	if got := b.SubscriberCount(BrandRoom("b1")); got != 1 {
		t.Fatalf("subscriber count mismatch: got %d want 1", got)
	}
	cancel()
	if got := b.SubscriberCount(BrandRoom("b1")); got != 0 {
		t.Fatalf("subscriber count after cancel: got %d want 0", got)
	}
	if _, open := <-sub.C(); open {
		t.Fatal("channel still open after cancel")
	}
}

type recordingMirror struct {
	rooms []string
}

func (m *recordingMirror) Publish(_ context.Context, room string, _ Event) error {
	m.rooms = append(m.rooms, room)
	return nil
}

func TestDeliverReachesRoomWithoutMirroring(t *testing.T) {
	mirror := &recordingMirror{}
	b := NewBridge(zerolog.Nop(), WithMirror(mirror))
	sub, cancel := b.Subscribe(BrandRoom("b1"))
	defer cancel()

	b.Deliver(BrandRoom("b1"), Event{JobID: "j1", BrandID: "b1", Status: StatusRunning, Progress: 40})

	select {
	case evt := <-sub.C():
		if evt.Status != StatusRunning || evt.Progress != 40 {
			t.Fatalf("delivered event mismatch: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("delivered event missing timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber received nothing")
	}
	if len(mirror.rooms) != 0 {
		t.Fatalf("delivered event was re-mirrored: %v", mirror.rooms)
	}
}

func TestMirrorReceivesEveryRoom(t *testing.T) {
	mirror := &recordingMirror{}
	b := NewBridge(zerolog.Nop(), WithMirror(mirror))

	b.Publish(context.Background(), Event{JobID: "j1", BrandID: "b1", Status: StatusQueued})

	want := map[string]bool{JobRoom("j1"): true, BrandRoom("b1"): true}
	if len(mirror.rooms) != 2 {
		t.Fatalf("mirror publish count mismatch: %v", mirror.rooms)
	}
	for _, room := range mirror.rooms {
		if !want[room] {
			t.Fatalf("mirror saw unexpected room %q", room)
		}
	}
}
