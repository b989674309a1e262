package worker

import (
	"testing"
	"time"

	"brandkit/internal/queue"
)

func TestRetryDelayExponential(t *testing.T) {
	policy := queue.RetryPolicy{Attempts: 4, BackoffDelay: 3 * time.Second, BackoffKind: queue.BackoffExponential}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 12 * time.Second},
	}
	for _, tc := range cases {
		if got := RetryDelay(policy, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryDelayFixed(t *testing.T) {
	policy := queue.RetryPolicy{Attempts: 5, BackoffDelay: time.Minute, BackoffKind: queue.BackoffFixed}
	for attempt := 1; attempt <= 4; attempt++ {
		if got := RetryDelay(policy, attempt); got != time.Minute {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, time.Minute)
		}
	}
}
