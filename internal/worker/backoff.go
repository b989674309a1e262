package worker

import (
	"time"

	"brandkit/internal/queue"
)

// RetryDelay computes the wait before retry attempt n (1-indexed: attempt
// 1 is the first retry after the initial failure). Exponential doubles
// the base each attempt; fixed always returns the base.
func RetryDelay(policy queue.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch policy.BackoffKind {
	case queue.BackoffFixed:
		return policy.BackoffDelay
	default:
		return policy.BackoffDelay << (attempt - 1)
	}
}
