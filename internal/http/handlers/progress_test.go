package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brandkit/internal/progress"
)

func TestJobEventsStream(t *testing.T) {
	app, _, _ := newTestApp(t, map[string]int{})
	srv := httptest.NewServer(testRouter(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/j1/events")
	if err != nil {
		t.Fatalf("GET returned error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type mismatch: %q", got)
	}

	// Publish once the stream has actually joined the room.
	deadline := time.Now().Add(2 * time.Second)
	for app.Bridge.SubscriberCount(progress.JobRoom("j1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	app.Bridge.Publish(context.Background(), progress.Event{
		JobID: "j1", BrandID: "b1", Status: progress.StatusComplete, Progress: 100,
	})

	reader := bufio.NewReader(resp.Body)
	var data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read error: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			break
		}
	}

	var evt progress.Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("event undecodable: %v", err)
	}
	if evt.JobID != "j1" || evt.Status != progress.StatusComplete || evt.Progress != 100 {
		t.Fatalf("event mismatch: %+v", evt)
	}
}

func TestBrandEventsStreamSeesWholeBrand(t *testing.T) {
	app, _, _ := newTestApp(t, map[string]int{})
	srv := httptest.NewServer(testRouter(app))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/brands/b1/events")
	if err != nil {
		t.Fatalf("GET returned error: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for app.Bridge.SubscriberCount(progress.BrandRoom("b1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Events from two different jobs of the same brand arrive on one stream.
	for _, jobID := range []string{"logo-1", "mockup-1"} {
		app.Bridge.Publish(context.Background(), progress.Event{
			JobID: jobID, BrandID: "b1", Status: progress.StatusRunning, Progress: 10,
		})
	}

	reader := bufio.NewReader(resp.Body)
	seen := map[string]bool{}
	for len(seen) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read error: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt progress.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data: "))), &evt); err != nil {
			t.Fatalf("event undecodable: %v", err)
		}
		seen[evt.JobID] = true
	}
	if !seen["logo-1"] || !seen["mockup-1"] {
		t.Fatalf("brand stream missed a job: %v", seen)
	}
}
