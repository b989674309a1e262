// Package crm defines the CRM notification collaborator.
package crm

import (
	"context"
	"sync"
)

// Notification is one event pushed to the CRM.
type Notification struct {
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId"`
	Data      map[string]any `json:"data,omitempty"`
}

// Notifier forwards notifications to the CRM system.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Recorder is an in-memory Notifier for tests and dev mode.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything notified so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
