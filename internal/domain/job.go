package domain

import (
	"encoding/json"
	"time"
)

// JobState enumerates job lifecycle states.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobDelayed   JobState = "delayed"
)

// Terminal reports whether a job in this state will never run again.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a unit of asynchronous work bound to a named queue.
type Job struct {
	ID           string
	Queue        string
	Payload      json.RawMessage
	Priority     int
	AttemptsMade int
	State        JobState
	// NotBefore is the earliest time a delayed or retrying job becomes
	// eligible for a worker claim. Zero means immediately eligible.
	NotBefore  time.Time
	UserID     string
	BrandID    string
	LastError  string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Clone returns a deep copy so broker internals never alias caller payloads.
func (j *Job) Clone() *Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	return &c
}
