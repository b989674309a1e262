package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownQueue     = errors.New("unknown queue")
	ErrCreditExhausted  = errors.New("credit balance exhausted")
	ErrJobTimeout       = errors.New("job handler timed out")
	ErrTokenInvalid     = errors.New("invalid resume token")
	ErrTokenExpired     = errors.New("resume token expired")
	ErrBrokerClosed     = errors.New("broker closed")
	ErrDuplicateHandler = errors.New("handler already registered")
)

// FieldError describes a single invalid payload field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports every failing field of a job payload, not just
// the first. A job that fails validation never reaches the broker.
type ValidationError struct {
	Queue  string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return fmt.Sprintf("invalid payload for queue %q: %s", e.Queue, strings.Join(parts, "; "))
}

// Add appends a field failure and returns the receiver for chaining.
func (e *ValidationError) Add(field, reason string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
	return e
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }
