// Package email defines the transactional-email collaborator.
package email

import (
	"context"
	"sync"

	"golang.org/x/text/language"
)

// Message is one templated email.
type Message struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Locale   string         `json:"locale,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Mailer renders and sends a templated message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// supported lists the locales templates exist for; the first entry is
// the fallback.
var supported = []language.Tag{
	language.English,
	language.Indonesian,
	language.Spanish,
	language.BrazilianPortuguese,
}

var matcher = language.NewMatcher(supported)

// ResolveLocale maps a requested locale onto the closest locale we have
// templates for. Unparseable or empty input falls back to English.
func ResolveLocale(requested string) string {
	if requested == "" {
		return supported[0].String()
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return supported[0].String()
	}
	_, idx, _ := matcher.Match(tag)
	return supported[idx].String()
}

// Recorder is an in-memory Mailer for tests and dev mode.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of everything sent so far.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
